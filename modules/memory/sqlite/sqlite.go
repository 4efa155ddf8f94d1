// Package sqlite implements the memory.sqlite module: a persistent
// memory.Store on modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/voidKandy/espionox-sub001/internal/core"
	"github.com/voidKandy/espionox-sub001/internal/memory"
)

// ModuleID is the module and service name of the store.
const ModuleID = "memory.sqlite"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the database and registers its Store as a service.
type Module struct {
	config Config
	logger *slog.Logger
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
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	return m.config.validate()
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.Path = m.config.dbPath(ctx.DataDir)

	store, err := Open(context.Background(), m.config.Path, m.config)
	if err != nil {
		return err
	}
	m.store = store

	ctx.RegisterService(ModuleID, memory.Store(store))

	m.logger.Info("sqlite memory module provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if m.store == nil {
		return fmt.Errorf("sqlite: not provisioned")
	}
	if err := m.store.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite memory module stopping")
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// Store returns the provisioned store.
func (m *Module) Store() *Store {
	return m.store
}
