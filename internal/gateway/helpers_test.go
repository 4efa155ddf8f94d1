package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/voidKandy/espionox-sub001/internal/agent"
	ctxengine "github.com/voidKandy/espionox-sub001/internal/context"
	"github.com/voidKandy/espionox-sub001/internal/dispatch"
	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/internal/memory"
	"github.com/voidKandy/espionox-sub001/internal/provider/providertest"
	"github.com/voidKandy/espionox-sub001/internal/security"
	"github.com/voidKandy/espionox-sub001/internal/security/securitytest"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

const testProviderID = "provider.mock"

// lengthEmbedder maps text to a 2-d vector of its length, so shorter
// queries sit closer to shorter summaries.
var lengthEmbedder = embedding.EmbedderFunc(func(_ context.Context, text string) (embedding.Vector, error) {
	return embedding.Vector{float32(len(text)), 1}, nil
})

type testEnv struct {
	gateway *Gateway
	server  *httptest.Server
	mock    *providertest.MockProvider
	store   *memory.MemStore
	events  func() []security.AuditEvent
}

// newTestEnv serves a gateway with two agents: "scout" in cache mode and
// "archivist" in long-term mode on thread "main".
func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	cfg.defaults()

	mock := &providertest.MockProvider{StreamFunc: providertest.Deltas("Hel", "lo")}
	d := dispatch.New(dispatch.Config{
		Credentials: securitytest.NewTestCredentialStore(testProviderID, "sk-test"),
		BackOff:     func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	d.RegisterProvider(testProviderID, mock)

	store := memory.NewMemStore()
	agents := agent.NewRegistry()
	for _, tc := range []struct {
		name string
		mode memory.Mode
	}{
		{"scout", memory.Cache()},
		{"archivist", memory.LongTerm("main")},
	} {
		if err := agents.Add(newTestAgent(t, tc.name, tc.mode, store)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	audit, events := securitytest.NewTestAuditLogger()
	reg := prometheus.NewRegistry()
	g := &Gateway{
		config:     cfg,
		logger:     slog.Default(),
		dispatcher: d,
		agents:     agents,
		audit:      audit,
		registry:   reg,
		limiter:    security.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		metrics:    newHTTPMetrics(reg),
	}
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)

	return &testEnv{gateway: g, server: srv, mock: mock, store: store, events: events}
}

func newTestAgent(t *testing.T, name string, mode memory.Mode, store memory.Store) *agent.Agent {
	t.Helper()
	policy, err := ctxengine.NewPolicy(ctxengine.SummarizeAtLimit(50, false), ctxengine.Options{
		Summarizer: ctxengine.SummarizerFunc(func(context.Context, []message.Message) (string, error) {
			return "earlier talk", nil
		}),
	})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	backend, err := memory.NewBackend(memory.Config{
		Mode:     mode,
		Policy:   policy,
		Store:    store,
		Embedder: lengthEmbedder,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return &agent.Agent{
		Name:         name,
		SystemPrompt: "be brief",
		Provider:     testProviderID,
		Memory:       backend,
	}
}

// do sends a JSON request and decodes the JSON response into out when
// out is not nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			r = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(s), &node); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	// yaml.Unmarshal wraps in a document node; unwrap to the mapping.
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}
