package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestConfig_BusyTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", defaultBusyTimeout, false},
		{"250ms", 250 * time.Millisecond, false},
		{"0s", 0, false},
		{"-1s", 0, true},
		{"5000", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			c := Config{BusyTimeout: tt.in}
			got, err := c.busyTimeout()
			if (err != nil) != tt.wantErr {
				t.Fatalf("busyTimeout(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("busyTimeout(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfig_DBPath(t *testing.T) {
	t.Parallel()

	data := t.TempDir()
	if got, want := (&Config{}).dbPath(data), filepath.Join(data, defaultDBFile); got != want {
		t.Errorf("default path = %q, want %q", got, want)
	}
	if got := (&Config{Path: "/var/lib/x.db"}).dbPath(data); got != "/var/lib/x.db" {
		t.Errorf("explicit path = %q", got)
	}
}

func TestModule_ConfigureRejectsBadTimeout(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(`{busy_timeout: soon, wal: false}`), &node); err != nil {
		t.Fatal(err)
	}
	m := &Module{}
	if err := m.Configure(node.Content[0]); err == nil {
		t.Fatal("Configure accepted busy_timeout: soon")
	}
	if m.config.walEnabled() {
		t.Error("wal: false was not decoded")
	}
}
