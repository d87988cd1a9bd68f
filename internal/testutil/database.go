package testutil

import (
	"database/sql"
	"testing"

	"github.com/Krestall88/cleaning-control-sub003/internal/database"
)

func NewTestDatabase(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	// The tasks schema is the backbone of every test; fail fast if the
	// migrations did not land.
	var applied int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil || applied == 0 {
		t.Fatalf("test database has no applied migrations (err: %v)", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
