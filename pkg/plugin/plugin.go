// Package plugin defines the contract between the Depot core and its
// compile-time modules: lifecycle, shared services (store, event bus),
// HTTP routes, and optional capabilities.
package plugin

import (
	"context"
	"net/http"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Info describes a module for registration and the /modules endpoint.
type Info struct {
	Name        string
	Version     string
	Description string
}

// Deps carries the shared services handed to a module at Init time.
// Store and Bus may be nil for modules that declare no need for them.
type Deps struct {
	Config *viper.Viper
	Logger *zap.Logger
	Store  Store
	Bus    EventBus
}

// Module is implemented by every Depot module. Modules are registered at
// compile time, initialized in registration order, and stopped in reverse.
type Module interface {
	// Info returns the module's identity.
	Info() Info

	// Init prepares the module with its dependencies. It must not block.
	Init(deps Deps) error

	// Start begins background work. The context is canceled on shutdown.
	Start(ctx context.Context) error

	// Stop releases resources. Called after the HTTP server stops accepting.
	Stop() error
}

// Route is an HTTP route exposed by a module. Path is relative to the
// module mount point /api/v1/{module}.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}
