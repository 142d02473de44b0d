// Package inventory tracks physical devices through their lifecycle:
// intake, reservation, deployment, maintenance, and retirement. Every
// status change goes through the transition engine, which persists the
// change transactionally and then writes an audit entry and publishes a
// domain event.
package inventory

import (
	"context"
	"fmt"

	"github.com/depotlabs/depot/internal/config"
	"github.com/depotlabs/depot/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time capability guards.
var (
	_ plugin.Module        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module is the inventory module.
type Module struct {
	logger *zap.Logger
	store  plugin.Store
	bus    plugin.EventBus

	repo   DeviceRepository
	audit  AuditLog
	engine *Engine

	pageSize int
}

// New creates the inventory module. Dependencies arrive in Init.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.Info {
	return plugin.Info{
		Name:        "inventory",
		Version:     "0.1.0",
		Description: "Device inventory and lifecycle tracking",
	}
}

func (m *Module) Init(deps plugin.Deps) error {
	if deps.Store == nil {
		return fmt.Errorf("inventory: store is required")
	}
	if deps.Bus == nil {
		return fmt.Errorf("inventory: event bus is required")
	}
	m.logger = deps.Logger
	m.store = deps.Store
	m.bus = deps.Bus

	if err := m.store.Migrate(context.Background(), "inventory", migrations); err != nil {
		return fmt.Errorf("inventory: migrate: %w", err)
	}

	m.repo = NewSQLiteDeviceRepository(m.store)
	m.audit = NewSQLiteAuditLog(m.store.DB())
	m.engine = NewEngine(m.store, m.audit, m.bus, m.logger)

	cfg := config.New(deps.Config)
	m.pageSize = cfg.GetInt("page_size")
	if m.pageSize <= 0 {
		m.pageSize = defaultPageSize
	}

	return nil
}

func (m *Module) Start(ctx context.Context) error { return nil }

func (m *Module) Stop() error { return nil }

// Health reports whether the backing database answers a ping.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if err := m.store.DB().PingContext(ctx); err != nil {
		return plugin.HealthStatus{Healthy: false, Detail: err.Error()}
	}
	return plugin.HealthStatus{Healthy: true}
}
