package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/rehearsal-scheduler/internal/persistence/sqlite"
)

// NewSQLiteStorage opens a migrated database in a temporary directory that
// is closed when the test ends.
func NewSQLiteStorage(tb testing.TB) *sqlite.Storage {
	tb.Helper()

	storage, err := sqlite.Open(sqlite.DSN(filepath.Join(tb.TempDir(), "rehearsals.db")))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })

	if _, err := storage.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return storage
}
