package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/example/rehearsal-scheduler/internal/application"
	"github.com/example/rehearsal-scheduler/internal/calendar"
	"github.com/example/rehearsal-scheduler/internal/config"
	httptransport "github.com/example/rehearsal-scheduler/internal/http"
	"github.com/example/rehearsal-scheduler/internal/logging"
	"github.com/example/rehearsal-scheduler/internal/persistence/sqlite"
	"github.com/example/rehearsal-scheduler/internal/recurrence"
	"github.com/example/rehearsal-scheduler/internal/reminder"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		slog.Error("rehearsald failed", "error", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "rehearsald",
		Usage:     "Schedule band rehearsals without double-booking venues.",
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			occurrencesCommand(),
		},
	}
}

// runtime is the configuration, logger, and migrated storage every command
// starts from.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	storage *sqlite.Storage
}

func openRuntime(ctx context.Context, logOutput io.Writer) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.New(logOutput, cfg.LogLevel)

	storage, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	applied, err := storage.Migrate(ctx)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.InfoContext(ctx, "database migrations applied", "versions", applied)
	}
	return &runtime{cfg: cfg, logger: logger, storage: storage}, nil
}

func (rt *runtime) Close() {
	if err := rt.storage.Close(); err != nil {
		rt.logger.Error("failed to close storage", "error", err)
	}
}

type services struct {
	venues       *application.VenueService
	groups       *application.GroupService
	availability *application.AvailabilityService
	suggestions  *application.SuggestionService
	rehearsals   *application.RehearsalService
}

func (rt *runtime) services(now func() time.Time) services {
	engine := recurrence.NewEngine(rt.cfg.Location, recurrence.WithMaxOccurrences(rt.cfg.MaxOccurrences))
	storage, logger := rt.storage, rt.logger
	return services{
		venues:       application.NewVenueServiceWithLogger(storage, uuid.NewString, now, logger),
		groups:       application.NewGroupServiceWithLogger(storage, uuid.NewString, now, logger),
		availability: application.NewAvailabilityService(storage, logger),
		suggestions:  application.NewSuggestionService(storage, storage, storage, engine, logger),
		rehearsals:   application.NewRehearsalServiceWithLogger(storage, storage, storage, engine, uuid.NewString, now, logger),
	}
}

func newHandler(svc services, loc *time.Location, now func() time.Time, logger *slog.Logger) http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Venues:       httptransport.NewVenueHandler(svc.venues, logger),
		Groups:       httptransport.NewGroupHandler(svc.groups, svc.suggestions, logger),
		Availability: httptransport.NewAvailabilityHandler(svc.availability, logger),
		Rehearsals:   httptransport.NewRehearsalHandler(svc.rehearsals, loc, now, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequireMember(logger),
		},
	})
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the reminder job.",
		Action: func(c *cli.Context) error {
			ctx := c.Context
			rt, err := openRuntime(ctx, c.App.ErrWriter)
			if err != nil {
				return err
			}
			defer rt.Close()

			now := time.Now
			svc := rt.services(now)
			logger := rt.logger

			server := &http.Server{
				Addr:              rt.cfg.Addr(),
				Handler:           newHandler(svc, rt.cfg.Location, now, logger),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			job := reminder.New(svc.rehearsals, nil, rt.cfg.ReminderInterval, rt.cfg.ReminderLead, now, logger)
			jobDone := make(chan struct{})
			go func() {
				defer close(jobDone)
				job.Start(ctx)
			}()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("failed to shutdown server", "error", err)
				}
			}()

			logger.InfoContext(ctx, "rehearsal API listening", "addr", server.Addr, "timezone", rt.cfg.Location.String())
			err = server.ListenAndServe()
			cancel()
			<-jobDone
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations and exit.",
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c.Context, c.App.ErrWriter)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.logger.InfoContext(c.Context, "database is up to date")
			return nil
		},
	}
}

func occurrencesCommand() *cli.Command {
	return &cli.Command{
		Name:  "occurrences",
		Usage: "Print a rehearsal's occurrences in a window as iCalendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rehearsal", Required: true, Usage: "rehearsal id"},
			&cli.TimestampFlag{Name: "from", Required: true, Layout: time.RFC3339, Usage: "window start (RFC 3339)"},
			&cli.TimestampFlag{Name: "to", Required: true, Layout: time.RFC3339, Usage: "window end (RFC 3339)"},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			rt, err := openRuntime(ctx, c.App.ErrWriter)
			if err != nil {
				return err
			}
			defer rt.Close()

			id := c.String("rehearsal")
			stored, err := rt.storage.GetRehearsal(ctx, id)
			if err != nil {
				return fmt.Errorf("load rehearsal %s: %w", id, err)
			}

			// The command acts on behalf of the rehearsal's creator.
			svc := rt.services(time.Now)
			occurrences, err := svc.rehearsals.Occurrences(ctx, application.Principal{MemberID: stored.CreatedBy}, id,
				*c.Timestamp("from"), *c.Timestamp("to"))
			if err != nil {
				return fmt.Errorf("expand rehearsal %s: %w", id, err)
			}
			return calendar.Encode(c.App.Writer, httptransport.OccurrenceEvents(occurrences), time.Now())
		},
	}
}
