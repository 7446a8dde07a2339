package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/rehearsal-scheduler/internal/logging"
)

// DefaultSQLiteDSN opens rehearsals.db with foreign keys, a busy timeout, WAL,
// and writers that take the lock when their transaction begins.
const DefaultSQLiteDSN = "file:rehearsals.db?_pragma=foreign_keys%281%29&_pragma=busy_timeout%285000%29&_pragma=journal_mode%28WAL%29&_txlock=immediate"

// Config captures environment driven configuration values for the rehearsal service.
type Config struct {
	HTTPPort  int
	SQLiteDSN string
	// Location is the zone wall-clock recurrence and availability are evaluated in.
	Location         *time.Location
	MaxOccurrences   int
	ReminderInterval time.Duration
	ReminderLead     time.Duration
	LogLevel         slog.Level
}

// Load parses configuration values from the current process environment.
//
// Every variable is optional. Values that fail to parse are collected and
// reported together.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:         8080,
		SQLiteDSN:        DefaultSQLiteDSN,
		Location:         time.UTC,
		MaxOccurrences:   366,
		ReminderInterval: 5 * time.Minute,
		ReminderLead:     24 * time.Hour,
		LogLevel:         slog.LevelInfo,
	}

	invalid := make([]string, 0, 2)

	if portValue := lookup("REHEARSAL_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "REHEARSAL_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := lookup("REHEARSAL_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if zone := lookup("REHEARSAL_TIMEZONE"); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			invalid = append(invalid, "REHEARSAL_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if limitValue := lookup("REHEARSAL_MAX_OCCURRENCES"); limitValue != "" {
		limit, err := strconv.Atoi(limitValue)
		if err != nil || limit <= 0 {
			invalid = append(invalid, "REHEARSAL_MAX_OCCURRENCES")
		} else {
			cfg.MaxOccurrences = limit
		}
	}

	if value := lookup("REHEARSAL_REMINDER_INTERVAL"); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			invalid = append(invalid, "REHEARSAL_REMINDER_INTERVAL")
		} else {
			cfg.ReminderInterval = d
		}
	}

	if value := lookup("REHEARSAL_REMINDER_LEAD"); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			invalid = append(invalid, "REHEARSAL_REMINDER_LEAD")
		} else {
			cfg.ReminderLead = d
		}
	}

	if value := lookup("REHEARSAL_LOG_LEVEL"); value != "" {
		level, err := logging.ParseLevel(value)
		if err != nil {
			invalid = append(invalid, "REHEARSAL_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
