// Package dispatch coordinates agent invocations: it serializes work per
// agent, drives a provider stream through the decoder, commits the exchange
// to the agent's memory and notifies observers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voidKandy/espionox-sub001/internal/agent"
	"github.com/voidKandy/espionox-sub001/internal/hook"
	"github.com/voidKandy/espionox-sub001/internal/memory"
	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/internal/stream"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// DefaultTimeout bounds a dispatch when neither the call nor the agent sets one.
const DefaultTimeout = 60 * time.Second

const tracerName = "github.com/voidKandy/espionox-sub001/internal/dispatch"

// Credentials reports whether an API key is available for a provider identity.
// *security.CredentialStore satisfies it.
type Credentials interface {
	Has(name string) bool
}

// ObserverError records an observer that failed after a successful dispatch.
type ObserverError = hook.Failure

// Result is the outcome of a successful dispatch.
type Result struct {
	Reply          message.Message
	ObserverErrors []ObserverError
	Duration       time.Duration
}

// Config assembles a Dispatcher. Only Credentials is required in production;
// everything else has a usable default.
type Config struct {
	// Credentials gates dispatches on a key being present. Nil skips the check.
	Credentials Credentials

	Observers *hook.Pipeline
	Isolation hook.Isolation
	Metrics   *Metrics
	Tracer    trace.Tracer
	Logger    *slog.Logger

	// DefaultTimeout applies when neither the call nor the agent sets one.
	DefaultTimeout time.Duration

	// BackOff builds the retry schedule for one dispatch. The dispatch
	// deadline always bounds it.
	BackOff func() backoff.BackOff
}

// Dispatcher runs dispatches against registered providers.
// It is safe for concurrent use.
type Dispatcher struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider

	lanes       *LaneLock
	credentials Credentials
	observers   *hook.Pipeline
	isolation   hook.Isolation
	metrics     *Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	timeout     time.Duration
	backOff     func() backoff.BackOff
}

// New creates a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observers := cfg.Observers
	if observers == nil {
		observers = hook.NewPipeline(logger)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	bo := cfg.BackOff
	if bo == nil {
		bo = func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = 250 * time.Millisecond
			eb.MaxElapsedTime = 0
			return eb
		}
	}
	return &Dispatcher{
		providers:   make(map[string]provider.Provider),
		lanes:       NewLaneLock(),
		credentials: cfg.Credentials,
		observers:   observers,
		isolation:   cfg.Isolation,
		metrics:     cfg.Metrics,
		tracer:      tracer,
		logger:      logger.With("component", "dispatch"),
		timeout:     timeout,
		backOff:     bo,
	}
}

// RegisterProvider makes p available to agents whose Provider is id.
// Registering the same id again replaces the previous provider.
func (d *Dispatcher) RegisterProvider(id string, p provider.Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[id] = p
}

// Provider returns the provider registered under id.
func (d *Dispatcher) Provider(id string) (provider.Provider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[id]
	return p, ok
}

// Observers returns the pipeline notified after each dispatch.
func (d *Dispatcher) Observers() *hook.Pipeline { return d.observers }

// Dispatch sends prompt to a on behalf of the caller and returns the reply.
// At most one dispatch per agent is in flight; others wait for the lane.
// A failed dispatch leaves the agent's transcript as it was.
func (d *Dispatcher) Dispatch(ctx context.Context, a *agent.Agent, prompt string, opts ...Option) (*Result, error) {
	if a == nil {
		return nil, classify(ctx, nil, "", "dispatch", ErrAgentIsNone)
	}
	p, err := d.resolve(a)
	if err != nil {
		return nil, classify(ctx, nil, a.Name, "dispatch", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	started := time.Now()
	ctx, span := d.tracer.Start(ctx, "dispatch", trace.WithAttributes(
		attribute.String("agent", a.Name),
		attribute.String("provider", a.Provider),
		attribute.String("model", p.ModelName()),
	))
	defer span.End()

	res, err := d.dispatch(ctx, a, p, prompt, o, started)

	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	d.metrics.dispatched(a.Name, outcome, time.Since(started))

	if err != nil {
		d.logger.Warn("dispatch failed", "agent", a.Name, "kind", outcome, "error", err)
		return nil, err
	}
	return res, nil
}

func (d *Dispatcher) resolve(a *agent.Agent) (provider.Provider, error) {
	p, ok := d.Provider(a.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoProvider, a.Provider)
	}
	if d.credentials != nil && !d.credentials.Has(a.Provider) {
		return nil, fmt.Errorf("%w: %q", ErrNoAPIKey, a.Provider)
	}
	if a.Memory == nil {
		return nil, errors.New("dispatch: agent has no memory backend")
	}
	return p, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, a *agent.Agent, p provider.Provider, prompt string, o options, started time.Time) (*Result, error) {
	if err := d.lanes.Acquire(ctx, a.Name); err != nil {
		return nil, classify(ctx, nil, a.Name, "dispatch", err)
	}
	defer d.lanes.Release(a.Name)

	scoped, cancel := context.WithTimeout(ctx, d.timeoutFor(a, o))
	defer cancel()

	fail := func(err error) (*Result, error) {
		return nil, classify(ctx, scoped, a.Name, "dispatch", err)
	}

	tr, err := a.Memory.Load(scoped)
	if err != nil {
		return fail(err)
	}

	var staged []message.Message
	if tr.Len() == 0 && a.SystemPrompt != "" {
		staged = append(staged, message.New(message.RoleSystem, a.SystemPrompt))
	}
	user := message.New(message.RoleUser, prompt)
	staged = append(staged, user)

	wire := tr.ToWire()
	for _, m := range staged {
		wire = append(wire, m.Wire())
	}
	req := provider.CompletionRequest{Messages: wire}

	text, err := d.stream(scoped, a, p, req, o)
	if err != nil {
		return fail(err)
	}

	reply := message.NewWithMetadata(message.RoleAssistant, text, message.Metadata{ModelGenerated: true})
	if err := a.Memory.Commit(scoped, append(staged, reply)...); err != nil {
		return fail(err)
	}

	mode := a.Memory.Mode()
	ex := hook.Exchange{
		Agent:    a.Name,
		Provider: a.Provider,
		Thread:   mode.Thread(),
		Mode:     mode.String(),
		Prompt:   user,
		Reply:    reply,
		Started:  started,
		Duration: time.Since(started),
	}
	isolation := d.isolation
	if o.isolation != nil {
		isolation = *o.isolation
	}
	failures := d.observers.Run(ctx, ex, isolation)
	for _, f := range failures {
		d.metrics.observerFailed(f.Observer)
	}

	d.logger.Debug("dispatch completed",
		"agent", a.Name,
		"mode", mode.String(),
		"reply_len", len(text),
		"observer_failures", len(failures),
	)
	return &Result{Reply: reply, ObserverErrors: failures, Duration: time.Since(started)}, nil
}

// stream runs the provider stream through the decoder, retrying retryable
// transport errors as long as no delta has reached the caller.
func (d *Dispatcher) stream(ctx context.Context, a *agent.Agent, p provider.Provider, req provider.CompletionRequest, o options) (string, error) {
	retries := a.Retries
	if o.hasRetries {
		retries = o.retries
	}

	emitted := false
	onDelta := func(delta string) {
		emitted = true
		d.metrics.delta(a.Name)
		if o.onDelta != nil {
			o.onDelta(delta)
		}
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		chunks, err := p.Stream(ctx, req)
		if err == nil {
			var text string
			text, err = stream.Collect(ctx, chunks, onDelta)
			if err == nil {
				return text, nil
			}
		}
		if emitted || ctx.Err() != nil || !provider.IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		d.logger.Debug("retrying stream", "agent", a.Name, "attempt", attempt, "error", err)
		return "", err
	}

	if retries <= 0 {
		text, err := op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return text, err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(d.backOff(), uint64(retries)), ctx)
	return backoff.RetryWithData(op, b)
}

func (d *Dispatcher) timeoutFor(a *agent.Agent, o options) time.Duration {
	switch {
	case o.timeout > 0:
		return o.timeout
	case a.Timeout > 0:
		return a.Timeout
	default:
		return d.timeout
	}
}

// Switch changes the memory mode of a. It waits for the agent's lane so a
// switch never interleaves with a dispatch.
func (d *Dispatcher) Switch(ctx context.Context, a *agent.Agent, mode memory.Mode) error {
	if a == nil {
		return classify(ctx, nil, "", "switch", ErrAgentIsNone)
	}
	if err := d.lanes.Acquire(ctx, a.Name); err != nil {
		return classify(ctx, nil, a.Name, "switch", err)
	}
	defer d.lanes.Release(a.Name)

	if err := a.Memory.Switch(ctx, mode); err != nil {
		return d.backendError(ctx, a.Name, "switch", err)
	}
	return nil
}

// RememberFile ingests the file at path into the agent's long-term memory.
func (d *Dispatcher) RememberFile(ctx context.Context, a *agent.Agent, path string) ([]memory.Summary, error) {
	if a == nil {
		return nil, classify(ctx, nil, "", "remember", ErrAgentIsNone)
	}
	out, err := a.Memory.RememberFile(ctx, path)
	if err != nil {
		return nil, d.backendError(ctx, a.Name, "remember", err)
	}
	return out, nil
}

// Recall returns the k stored summaries closest to query.
func (d *Dispatcher) Recall(ctx context.Context, a *agent.Agent, query string, k int) ([]memory.Match, error) {
	if a == nil {
		return nil, classify(ctx, nil, "", "recall", ErrAgentIsNone)
	}
	out, err := a.Memory.Recall(ctx, query, k)
	if err != nil {
		return nil, d.backendError(ctx, a.Name, "recall", err)
	}
	return out, nil
}

// backendError classifies a memory backend failure. Unknown causes come
// from the backend's collaborators and count as persistence failures.
func (d *Dispatcher) backendError(ctx context.Context, agentName, op string, err error) error {
	e := classify(ctx, nil, agentName, op, err)
	switch {
	case errors.Is(err, memory.ErrNoEmbedder), errors.Is(err, memory.ErrNoStore), errors.Is(err, memory.ErrInvalidMode):
		e.Kind = KindConfiguration
	case e.Kind == KindTransport:
		e.Kind = KindPersistence
	}
	return e
}
