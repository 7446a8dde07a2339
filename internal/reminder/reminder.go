// Package reminder materialises upcoming rehearsal occurrences on a fixed
// cadence and hands each one to a Notifier exactly once.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/rehearsal-scheduler/internal/application"
)

// Source enumerates occurrences across every rehearsal.
type Source interface {
	UpcomingOccurrences(ctx context.Context, from, to time.Time) ([]application.Occurrence, error)
}

// Notifier delivers a reminder for one occurrence.
type Notifier interface {
	Notify(ctx context.Context, occurrence application.Occurrence) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, occurrence application.Occurrence) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, occurrence application.Occurrence) error {
	return f(ctx, occurrence)
}

// LogNotifier records reminders in the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, o application.Occurrence) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"rehearsal_id", o.RehearsalID,
		"group_id", o.GroupID,
		"occurrence_index", o.Index,
		"start", o.Start,
		"end", o.End,
	}
	if o.VenueID != nil {
		attrs = append(attrs, "venue_id", *o.VenueID)
	}
	logger.InfoContext(ctx, "rehearsal reminder", attrs...)
	return nil
}

// Job scans [now, now+lead] every interval.
type Job struct {
	source   Source
	notifier Notifier
	interval time.Duration
	lead     time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	sent map[string]time.Time
}

// New constructs a reminder job. A nil now uses time.Now and a nil notifier
// logs reminders.
func New(source Source, notifier Notifier, interval, lead time.Duration, now func() time.Time, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if now == nil {
		now = time.Now
	}
	return &Job{
		source:   source,
		notifier: notifier,
		interval: interval,
		lead:     lead,
		now:      now,
		logger:   logger.With("component", "reminder"),
		sent:     make(map[string]time.Time),
	}
}

// Start runs the job until ctx is cancelled, scanning once immediately.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.InfoContext(ctx, "reminder job started", "interval", j.interval, "lead", j.lead)
	j.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.InfoContext(ctx, "reminder job stopped")
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	notified, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "reminder scan failed", "error", err, "notified", notified)
		return
	}
	j.logger.DebugContext(ctx, "reminder scan finished", "notified", notified)
}

// RunOnce notifies every occurrence starting within [now, now+lead] that has
// not been notified before and returns how many were sent. Failed
// notifications are retried on the next run.
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	if j == nil || j.source == nil {
		return 0, fmt.Errorf("reminder source not configured")
	}
	now := j.now()
	occurrences, err := j.source.UpcomingOccurrences(ctx, now, now.Add(j.lead))
	if err != nil {
		return 0, fmt.Errorf("list upcoming occurrences: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.prune(now)

	var errs []error
	notified := 0
	for _, o := range occurrences {
		if err := ctx.Err(); err != nil {
			return notified, err
		}
		key := occurrenceKey(o)
		if _, done := j.sent[key]; done {
			continue
		}
		if err := j.notifier.Notify(ctx, o); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", key, err))
			continue
		}
		j.sent[key] = o.Start
		notified++
	}
	return notified, errors.Join(errs...)
}

// prune forgets occurrences that have already started; they can no longer
// fall within a scan window.
func (j *Job) prune(now time.Time) {
	for key, start := range j.sent {
		if start.Before(now) {
			delete(j.sent, key)
		}
	}
}

func occurrenceKey(o application.Occurrence) string {
	return fmt.Sprintf("%s#%d@%d", o.RehearsalID, o.Index, o.Start.Unix())
}
