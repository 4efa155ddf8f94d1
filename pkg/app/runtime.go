package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/voidKandy/espionox-sub001/internal/agent"
	"github.com/voidKandy/espionox-sub001/internal/config"
	"github.com/voidKandy/espionox-sub001/internal/core"
	"github.com/voidKandy/espionox-sub001/internal/cron"
	"github.com/voidKandy/espionox-sub001/internal/dispatch"
	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/internal/gateway"
	"github.com/voidKandy/espionox-sub001/internal/hook"
	"github.com/voidKandy/espionox-sub001/internal/logging"
	"github.com/voidKandy/espionox-sub001/internal/memory"
	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/internal/security"
	"github.com/voidKandy/espionox-sub001/internal/telemetry"
)

// Service names registered by Build besides the gateway's.
const (
	ServiceCredentials = "security.credentials"
	ServiceRedactor    = "security.redactor"
)

// Options tune Build.
type Options struct {
	// DataDir overrides DefaultDataDir.
	DataDir string

	// Logger replaces the configured process logger. Tests use it.
	Logger *slog.Logger

	// AuditWriter receives audit events. Nil means DataDir/audit.jsonl.
	AuditWriter io.Writer
}

// Runtime is an assembled but not yet started espionox instance.
type Runtime struct {
	App         *core.App
	Context     *core.AppContext
	Dispatcher  *dispatch.Dispatcher
	Agents      *agent.Registry
	Credentials *security.CredentialStore
	Logger      *slog.Logger

	closers []func(context.Context) error
}

// Build wires a Runtime from cfg: logging, credentials, telemetry and
// metrics, every configured module, the dispatcher with its providers and
// observers, the agents, and the maintenance scheduler. Modules are
// provisioned but not started.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Runtime, err error) {
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	credentials := security.NewCredentialStore()
	redactor := security.NewRedactor()
	redactor.Bind(credentials)

	logger := opts.Logger
	if logger == nil {
		logger, err = logging.Init(logging.Config{
			Level:    cfg.Logging.Level,
			Format:   cfg.Logging.Format,
			Output:   cfg.Logging.Output,
			Redactor: redactor,
		})
		if err != nil {
			return nil, err
		}
	}

	rt := &Runtime{Credentials: credentials, Logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	auditWriter := opts.AuditWriter
	if auditWriter == nil {
		f, ferr := openAuditFile(dataDir)
		if ferr != nil {
			return nil, ferr
		}
		rt.closers = append(rt.closers, func(context.Context) error { return f.Close() })
		auditWriter = f
	}
	audit := security.NewAuditLogger(security.AuditLoggerConfig{Writer: auditWriter, Redactor: redactor})

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
	}, logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, shutdownTracing)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(ServiceCredentials, credentials)
	appCtx.RegisterService(ServiceRedactor, redactor)
	appCtx.RegisterService(gateway.ServiceAudit, audit)
	appCtx.RegisterService(gateway.ServiceRegistry, registry)
	rt.Context = appCtx

	application := core.NewApp(appCtx)
	ids := moduleOrder(config.Resolve(cfg))
	if err := application.LoadModules(ids); err != nil {
		return nil, err
	}
	rt.App = application

	isolation, err := hook.ParseIsolation(cfg.Observers.Isolation)
	if err != nil {
		return nil, err
	}
	observers := hook.NewPipeline(logger)
	observers.Register(hook.NewAuditObserver(logger, audit))

	d := dispatch.New(dispatch.Config{
		Credentials: credentials,
		Observers:   observers,
		Isolation:   isolation,
		Metrics:     dispatch.NewMetrics(registry),
		Logger:      logger,
	})
	svc := moduleServices{ctx: appCtx}
	for _, id := range ids {
		if p, ok := svc.Provider(id); ok {
			d.RegisterProvider(id, p)
			logger.Info("provider registered", "provider", id, "model", p.ModelName())
		}
	}
	rt.Dispatcher = d

	agents, err := buildAgents(ctx, cfg, svc, logger)
	if err != nil {
		return nil, err
	}
	rt.Agents = agents

	appCtx.RegisterService(gateway.ServiceDispatcher, d)
	appCtx.RegisterService(gateway.ServiceAgents, agents)

	if cfg.Maintenance.Schedule != "" {
		if err := appendScheduler(application, cfg.Maintenance.Schedule, svc.stores(ids), logger); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// Close stops every module, including ones that were never started, and
// flushes telemetry. It is for runtimes that were built but not Run.
func (rt *Runtime) Close() {
	if rt.App != nil {
		rt.App.Close()
	}
	rt.shutdown()
}

func (rt *Runtime) shutdown() {
	ctx := context.Background()
	var errs []error
	for _, c := range slices.Backward(rt.closers) {
		errs = append(errs, c(ctx))
	}
	rt.closers = nil
	if err := errors.Join(errs...); err != nil && rt.Logger != nil {
		rt.Logger.Warn("shutdown incomplete", "error", err)
	}
}

// Store returns the memory store provisioned by module id.
func (rt *Runtime) Store(id string) (memory.Store, error) {
	return core.Service[memory.Store](rt.Context, id)
}

func buildAgents(ctx context.Context, cfg *config.Config, svc agent.Services, logger *slog.Logger) (*agent.Registry, error) {
	configs, order, err := agent.ParseConfigs(cfg.Agents)
	if err != nil {
		return nil, err
	}
	registry := agent.NewRegistry()
	for _, name := range order {
		a, err := agent.Build(ctx, name, configs[name], svc, logger)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(a); err != nil {
			return nil, err
		}
		logger.Info("agent ready", "agent", name, "provider", a.Provider, "mode", a.Memory.Mode().String())
	}
	return registry, nil
}

// moduleOrder loads gateways last so they stop first, before the stores
// and providers their handlers use.
func moduleOrder(ids []string) []string {
	out := slices.Clone(ids)
	slices.SortStableFunc(out, func(a, b string) int {
		ga, gb := strings.HasPrefix(a, "gateway."), strings.HasPrefix(b, "gateway.")
		switch {
		case ga == gb:
			return 0
		case ga:
			return 1
		default:
			return -1
		}
	})
	return out
}

func openAuditFile(dataDir string) (*os.File, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dataDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return f, nil
}

// moduleServices resolves agent collaborators from the service registry,
// where modules register themselves under their module ID.
type moduleServices struct {
	ctx *core.AppContext
}

func (s moduleServices) Provider(id string) (provider.Provider, bool) {
	p, err := core.Service[provider.Provider](s.ctx, id)
	return p, err == nil
}

func (s moduleServices) Store(id string) (memory.Store, bool) {
	st, err := core.Service[memory.Store](s.ctx, id)
	return st, err == nil
}

func (s moduleServices) Embedder(id string) (embedding.Embedder, bool) {
	e, err := core.Service[embedding.Embedder](s.ctx, id)
	return e, err == nil
}

func (s moduleServices) stores(ids []string) map[string]memory.Store {
	out := make(map[string]memory.Store)
	for _, id := range ids {
		if st, ok := s.Store(id); ok {
			out[id] = st
		}
	}
	return out
}

// schedulerModule puts the cron scheduler in the App lifecycle.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

func (m *schedulerModule) Start() error { return m.scheduler.Start() }

func (m *schedulerModule) Stop(ctx context.Context) error { return m.scheduler.Stop(ctx) }

func appendScheduler(application *core.App, schedule string, stores map[string]memory.Store, logger *slog.Logger) error {
	maintainers := cron.MaintainersOf(stores)
	if len(maintainers) == 0 {
		logger.Debug("no maintainable stores, scheduler disabled")
		return nil
	}
	scheduler := cron.NewScheduler(logger)
	if err := scheduler.RegisterJob(&cron.StoreMaintenanceJob{
		Stores:       maintainers,
		Logger:       logger,
		ScheduleExpr: schedule,
	}); err != nil {
		return err
	}
	application.AppendModule("cron", &schedulerModule{scheduler: scheduler})
	return nil
}
