package agent

import (
	"context"
	"fmt"
	"log/slog"

	ctxengine "github.com/voidKandy/espionox-sub001/internal/context"
	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/internal/memory"
	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/internal/summarize"
)

// Services resolves module IDs to the collaborators an agent needs.
type Services interface {
	Provider(id string) (provider.Provider, bool)
	Store(id string) (memory.Store, bool)
	Embedder(id string) (embedding.Embedder, bool)
}

// Build assembles agent name from cfg: it resolves the summarizer, store
// and embedder, builds the caching policy and memory backend, and loads
// the initial transcript.
func Build(ctx context.Context, name string, cfg Config, svc Services, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("agent", name)

	cfg = cfg.withDefaults()
	if err := cfg.Validate(name, nil); err != nil {
		return nil, err
	}
	timeout, _ := cfg.TimeoutDuration()
	mode, _ := cfg.Mode()
	mech, _ := cfg.Mechanism()

	var store memory.Store
	if cfg.Memory.Store != "" {
		s, ok := svc.Store(cfg.Memory.Store)
		if !ok {
			return nil, fmt.Errorf("agent %q: store %q is not available", name, cfg.Memory.Store)
		}
		store = s
	}

	var emb embedding.Embedder
	if cfg.Memory.Embedder != "" {
		e, ok := svc.Embedder(cfg.Memory.Embedder)
		if !ok {
			return nil, fmt.Errorf("agent %q: embedder %q is not available", name, cfg.Memory.Embedder)
		}
		emb = embedding.Checked(e)
	}

	opts := ctxengine.Options{Embedder: emb, Logger: logger}
	if mech.Kind() == ctxengine.KindSummarize {
		p, ok := svc.Provider(cfg.Memory.Summarizer)
		if !ok {
			return nil, fmt.Errorf("agent %q: summarizer provider %q is not available", name, cfg.Memory.Summarizer)
		}
		opts.Summarizer = summarize.New(p)
	}
	if store != nil {
		opts.Archive = memory.NewArchive(store)
	}

	policy, err := ctxengine.NewPolicy(mech, opts)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", name, err)
	}

	backend, err := memory.NewBackend(memory.Config{
		Mode:      mode,
		Policy:    policy,
		Store:     store,
		Embedder:  emb,
		ChunkSize: cfg.Memory.ChunkSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", name, err)
	}
	if _, err := backend.Load(ctx); err != nil {
		return nil, fmt.Errorf("agent %q: initial load: %w", name, err)
	}

	a := &Agent{
		Name:         name,
		SystemPrompt: cfg.SystemPrompt,
		Provider:     cfg.Provider,
		Timeout:      timeout,
		Retries:      cfg.Retries,
		Memory:       backend,
	}
	logger.Debug("agent built",
		"provider", a.Provider,
		"mode", mode.String(),
		"mechanism", mech.Kind().String(),
		"limit", mech.Limit(),
	)
	return a, nil
}
