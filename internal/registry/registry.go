// Package registry manages the lifecycle of all registered Depot modules.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/depotlabs/depot/pkg/plugin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Registry holds modules in registration order and drives their
// init/start/stop lifecycle.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]plugin.Module
	order   []string
	skipped map[string]bool // disabled via config, not initialized
	logger  *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		modules: make(map[string]plugin.Module),
		skipped: make(map[string]bool),
		logger:  logger,
	}
}

// Register adds a module. Names must be unique and non-empty.
func (r *Registry) Register(m plugin.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := m.Info()
	if info.Name == "" {
		return fmt.Errorf("module has empty name")
	}
	if _, exists := r.modules[info.Name]; exists {
		return fmt.Errorf("module %q already registered", info.Name)
	}

	r.modules[info.Name] = m
	r.order = append(r.order, info.Name)
	r.logger.Info("module registered",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
	)
	return nil
}

// InitAll initializes registered modules in registration order. Each
// module receives its own config section (modules.{name}), a named
// logger, and the shared store and bus. Modules disabled in config are
// skipped entirely.
func (r *Registry) InitAll(config *viper.Viper, store plugin.Store, bus plugin.EventBus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		m := r.modules[name]

		if !config.GetBool("modules." + name + ".enabled") {
			r.logger.Info("module disabled, skipping", zap.String("name", name))
			r.skipped[name] = true
			continue
		}

		moduleConfig := config.Sub("modules." + name)
		if moduleConfig == nil {
			moduleConfig = viper.New()
		}

		r.logger.Info("initializing module", zap.String("name", name))
		deps := plugin.Deps{
			Config: moduleConfig,
			Logger: r.logger.Named(name),
			Store:  store,
			Bus:    bus,
		}
		if err := m.Init(deps); err != nil {
			return fmt.Errorf("init module %q: %w", name, err)
		}

		// Install declared subscriptions before any module starts so
		// early events are not lost.
		if sub, ok := m.(plugin.EventSubscriber); ok && bus != nil {
			for _, s := range sub.Subscriptions() {
				bus.Subscribe(s.Topic, s.Handler)
			}
		}
	}
	return nil
}

// StartAll starts enabled modules in registration order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if r.skipped[name] {
			continue
		}
		r.logger.Info("starting module", zap.String("name", name))
		if err := r.modules[name].Start(ctx); err != nil {
			return fmt.Errorf("start module %q: %w", name, err)
		}
	}
	return nil
}

// StopAll stops enabled modules in reverse registration order. Stop
// errors are logged, not propagated, so every module gets a chance to
// shut down.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if r.skipped[name] {
			continue
		}
		r.logger.Info("stopping module", zap.String("name", name))
		if err := r.modules[name].Stop(); err != nil {
			r.logger.Error("failed to stop module", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns a module by name.
func (r *Registry) Get(name string) (plugin.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// All returns all registered modules in registration order.
func (r *Registry) All() []plugin.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]plugin.Module, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.modules[name])
	}
	return result
}

// Health collects health reports from enabled modules implementing
// plugin.HealthChecker, keyed by module name.
func (r *Registry) Health(ctx context.Context) map[string]plugin.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make(map[string]plugin.HealthStatus)
	for _, name := range r.order {
		if r.skipped[name] {
			continue
		}
		if hc, ok := r.modules[name].(plugin.HealthChecker); ok {
			health[name] = hc.Health(ctx)
		}
	}
	return health
}

// AllRoutes returns the routes of every enabled module implementing
// plugin.HTTPProvider, keyed by module name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]plugin.Route)
	for _, name := range r.order {
		if r.skipped[name] {
			continue
		}
		if hp, ok := r.modules[name].(plugin.HTTPProvider); ok {
			if pr := hp.Routes(); len(pr) > 0 {
				routes[name] = pr
			}
		}
	}
	return routes
}
