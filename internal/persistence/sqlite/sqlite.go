// Package sqlite implements the persistence repositories on database/sql with
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/rehearsal-scheduler/internal/persistence"
)

// Storage implements every persistence repository over one SQLite database.
type Storage struct {
	pool *ConnectionPool
}

var (
	_ persistence.VenueRepository        = (*Storage)(nil)
	_ persistence.GroupRepository        = (*Storage)(nil)
	_ persistence.RehearsalRepository    = (*Storage)(nil)
	_ persistence.AvailabilityRepository = (*Storage)(nil)
)

// Open connects to the database identified by dsn. Use DSN to build one for a
// file path. Call Migrate before using the repositories.
func Open(dsn string) (*Storage, error) {
	pool, err := openPool(dsn)
	if err != nil {
		return nil, err
	}
	return &Storage{pool: pool}, nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	return s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.DB().PingContext(ctx)
}

func (s *Storage) db() *sql.DB {
	return s.pool.DB()
}
