// Package postgres implements the memory.postgres module: a memory.Store
// on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/voidKandy/espionox-sub001/internal/core"
	"github.com/voidKandy/espionox-sub001/internal/memory"
)

// ModuleID is the module and service name of the store.
const ModuleID = "memory.postgres"

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config holds the memory.postgres module configuration.
type Config struct {
	// DSN is a libpq connection string or URL.
	DSN string `yaml:"dsn"`

	// MaxConns caps the pool size. Zero keeps the pgx default.
	MaxConns int32 `yaml:"max_conns"`

	// ConnectTimeout bounds pool creation and schema setup. Defaults to 10s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func (c *Config) defaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Module owns the pool and registers its Store as a service.
type Module struct {
	config Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("postgres: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It connects and creates the
// schema.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.DSN == "" {
		return errors.New("postgres: dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(m.config.DSN)
	if err != nil {
		return fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if m.config.MaxConns > 0 {
		poolCfg.MaxConns = m.config.MaxConns
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}
	store := New(pool)
	if err := store.EnsureSchema(connectCtx); err != nil {
		pool.Close()
		return err
	}

	m.pool = pool
	m.store = store
	ctx.RegisterService(ModuleID, memory.Store(store))

	m.logger.Info("postgres memory module provisioned",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.pool == nil {
		return errors.New("postgres: not provisioned")
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()
	if err := m.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.pool != nil {
		m.logger.Info("postgres memory module stopping")
		m.pool.Close()
	}
	return nil
}
