package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/depotlabs/depot/pkg/plugin"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMigrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create widgets",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE widgets (id TEXT PRIMARY KEY, name TEXT)`)
				return err
			},
		},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx, "widgets", testMigrations()); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	// A second run must skip the applied version, not fail on the
	// existing table.
	if err := s.Migrate(ctx, "widgets", testMigrations()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var count int
	err := s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM _migrations WHERE module = ?", "widgets",
	).Scan(&count)
	if err != nil {
		t.Fatalf("query _migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("recorded %d migrations, want 1", count)
	}
}

func TestMigrateIsolatedPerModule(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx, "alpha", testMigrations()); err != nil {
		t.Fatalf("Migrate alpha: %v", err)
	}

	// The same version number for another module still applies.
	other := []plugin.Migration{
		{
			Version:     1,
			Description: "create gadgets",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE gadgets (id TEXT PRIMARY KEY)`)
				return err
			},
		},
	}
	if err := s.Migrate(ctx, "beta", other); err != nil {
		t.Fatalf("Migrate beta: %v", err)
	}

	for _, table := range []string{"widgets", "gadgets"} {
		if _, err := s.DB().Exec("SELECT * FROM " + table); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx, "widgets", testMigrations()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	boom := errors.New("boom")
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO widgets (id, name) VALUES ('w1', 'one')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Tx = %v, want boom", err)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM widgets").Scan(&count); err != nil {
		t.Fatalf("count widgets: %v", err)
	}
	if count != 0 {
		t.Errorf("rolled-back insert left %d rows", count)
	}
}

func TestTxCommits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx, "widgets", testMigrations()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO widgets (id, name) VALUES ('w1', 'one')`)
		return err
	})
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}

	var name string
	if err := s.DB().QueryRow("SELECT name FROM widgets WHERE id = 'w1'").Scan(&name); err != nil {
		t.Fatalf("query widget: %v", err)
	}
	if name != "one" {
		t.Errorf("name = %q, want one", name)
	}
}
