// Package gateway exposes agents over HTTP: a JSON API for dispatch,
// transcripts, mode switches and recall, a websocket for streamed replies,
// plus health and Prometheus endpoints. It binds to loopback by default and
// follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/voidKandy/espionox-sub001/internal/agent"
	"github.com/voidKandy/espionox-sub001/internal/core"
	"github.com/voidKandy/espionox-sub001/internal/dispatch"
	"github.com/voidKandy/espionox-sub001/internal/security"
)

// ModuleID identifies the gateway in configuration.
const ModuleID = "gateway.http"

// Service names the gateway resolves at Start. The host registers them
// after modules are provisioned.
const (
	ServiceDispatcher = "espionox.dispatcher"
	ServiceAgents     = "espionox.agents"
	ServiceAudit      = "security.audit"
	ServiceRegistry   = "telemetry.prometheus"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// Resolved at Start() via the service registry.
	dispatcher *dispatch.Dispatcher
	agents     *agent.Registry
	audit      *security.AuditLogger
	registry   *prometheus.Registry

	limiter *security.RateLimiter
	metrics *httpMetrics
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.limiter = security.NewRateLimiter(g.config.RateLimit.Requests, g.config.RateLimit.Window)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if !g.config.Auth.IsConfigured() && !isLoopback(g.config.Bind) {
		return fmt.Errorf("gateway: auth must be configured to bind %s", g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	var err error
	if g.dispatcher, err = core.Service[*dispatch.Dispatcher](g.appCtx, ServiceDispatcher); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	if g.agents, err = core.Service[*agent.Registry](g.appCtx, ServiceAgents); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	// Optional services.
	if audit, err := core.Service[*security.AuditLogger](g.appCtx, ServiceAudit); err == nil {
		g.audit = audit
	}
	if reg, err := core.Service[*prometheus.Registry](g.appCtx, ServiceRegistry); err == nil {
		g.registry = reg
	} else {
		g.registry = prometheus.NewRegistry()
	}
	g.metrics = newHTTPMetrics(g.registry)

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func isLoopback(bind string) bool {
	host, _, err := net.SplitHostPort(bind)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
