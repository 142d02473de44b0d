package plugin

import (
	"context"
	"database/sql"
)

// Migration is one versioned schema change owned by a module. Versions
// must be unique per module and provided in ascending order.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Store is the shared durable storage handed to modules.
type Store interface {
	// DB returns the underlying database handle for queries.
	DB() *sql.DB

	// Tx runs fn inside a transaction, committing on nil and rolling
	// back otherwise.
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error

	// Migrate applies the module's pending migrations.
	Migrate(ctx context.Context, module string, migrations []Migration) error

	// Close releases the store.
	Close() error
}
