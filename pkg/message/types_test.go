package message

import "testing"

func TestRole_String(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want string
	}{
		{"system", RoleSystem, "system"},
		{"user", RoleUser, "user"},
		{"assistant", RoleAssistant, "assistant"},
		{"other", Other("tool"), "tool"},
		{"zero", Role{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.String(); got != tt.want {
				t.Errorf("Role.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"system", RoleSystem},
		{"USER", RoleUser},
		{"assistant", RoleAssistant},
		{"observer", Other("observer")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseRole(tt.in); got != tt.want {
				t.Errorf("ParseRole(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_UniqueIDs(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 100 {
		m := New(RoleUser, "hi")
		if m.ID() == "" {
			t.Fatal("empty id")
		}
		if _, dup := seen[m.ID()]; dup {
			t.Fatalf("duplicate id %s", m.ID())
		}
		seen[m.ID()] = struct{}{}
	}
}

func TestMetadata_IsCopied(t *testing.T) {
	t.Parallel()

	extra := map[string]string{"source": "test"}
	m := NewWithMetadata(RoleAssistant, "x", Metadata{ModelGenerated: true, Extra: extra})

	extra["source"] = "mutated"
	if got := m.Metadata().Extra["source"]; got != "test" {
		t.Errorf("metadata shared with caller map: got %q", got)
	}

	md := m.Metadata()
	md.Extra["source"] = "mutated"
	if got := m.Metadata().Extra["source"]; got != "test" {
		t.Errorf("metadata shared with accessor copy: got %q", got)
	}
	if !m.Metadata().ModelGenerated {
		t.Error("ModelGenerated lost")
	}
}

func TestRestore_KeepsIdentity(t *testing.T) {
	t.Parallel()

	m := Restore("abc", RoleSystem, "sum", Metadata{Kind: KindSummary})
	if m.ID() != "abc" || !m.IsSummary() || m.Role() != RoleSystem {
		t.Errorf("Restore = %+v", m)
	}
	if Restore("", RoleUser, "x", Metadata{}).ID() == "" {
		t.Error("Restore with empty id should generate one")
	}
}
