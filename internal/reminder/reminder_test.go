package reminder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rehearsal-scheduler/internal/application"
	"github.com/example/rehearsal-scheduler/internal/testfixtures"
)

type fakeSource struct {
	occurrences []application.Occurrence
	err         error
	windows     [][2]time.Time
}

func (f *fakeSource) UpcomingOccurrences(_ context.Context, from, to time.Time) ([]application.Occurrence, error) {
	f.windows = append(f.windows, [2]time.Time{from, to})
	if f.err != nil {
		return nil, f.err
	}
	out := make([]application.Occurrence, 0)
	for _, o := range f.occurrences {
		if !o.Start.Before(from) && !o.Start.After(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (r *recordingNotifier) Notify(_ context.Context, o application.Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[o.RehearsalID] {
		return errors.New("mailbox full")
	}
	r.seen = append(r.seen, o.RehearsalID)
	return nil
}

func occurrence(id string, start time.Time) application.Occurrence {
	return application.Occurrence{RehearsalID: id, GroupID: "g1", Start: start, End: start.Add(2 * time.Hour)}
}

func TestRunOnceNotifiesEachOccurrenceOnce(t *testing.T) {
	t.Parallel()
	clock := testfixtures.NewClock(time.Time{})
	now := clock.Now()
	source := &fakeSource{occurrences: []application.Occurrence{
		occurrence("soon", now.Add(2*time.Hour)),
		occurrence("tomorrow", now.Add(20*time.Hour)),
		occurrence("later", now.Add(30*time.Hour)),
	}}
	notifier := &recordingNotifier{}
	job := New(source, notifier, time.Minute, 24*time.Hour, clock.Now, nil)

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"soon", "tomorrow"}, notifier.seen)
	assert.True(t, source.windows[0][1].Equal(now.Add(24*time.Hour)))

	n, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(8 * time.Hour)
	n, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"soon", "tomorrow", "later"}, notifier.seen)
	_, stillTracked := job.sent[occurrenceKey(occurrence("soon", now.Add(2*time.Hour)))]
	assert.False(t, stillTracked, "started occurrences are pruned")
}

func TestRunOnceRetriesFailedNotifications(t *testing.T) {
	t.Parallel()
	clock := testfixtures.NewClock(time.Time{})
	source := &fakeSource{occurrences: []application.Occurrence{
		occurrence("ok", clock.Now().Add(time.Hour)),
		occurrence("flaky", clock.Now().Add(time.Hour)),
	}}
	notifier := &recordingNotifier{fail: map[string]bool{"flaky": true}}
	job := New(source, notifier, time.Minute, time.Hour*2, clock.Now, nil)

	n, err := job.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)

	notifier.fail = nil
	n, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"ok", "flaky"}, notifier.seen)
}

func TestRunOnceSourceError(t *testing.T) {
	t.Parallel()
	job := New(&fakeSource{err: errors.New("db down")}, &recordingNotifier{}, time.Minute, time.Hour, nil, nil)
	_, err := job.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestStartStopsOnCancel(t *testing.T) {
	t.Parallel()
	clock := testfixtures.NewClock(time.Time{})
	source := &fakeSource{occurrences: []application.Occurrence{occurrence("soon", clock.Now().Add(time.Hour))}}
	delivered := make(chan application.Occurrence, 1)
	notifier := NotifierFunc(func(_ context.Context, o application.Occurrence) error {
		delivered <- o
		return nil
	})
	job := New(source, notifier, time.Hour, 2*time.Hour, clock.Now, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	select {
	case o := <-delivered:
		assert.Equal(t, "soon", o.RehearsalID)
	case <-time.After(5 * time.Second):
		t.Fatal("initial scan did not notify")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop")
	}
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	venue := "v1"
	o := occurrence("r1", testfixtures.ReferenceTime())
	o.VenueID = &venue

	require.NoError(t, LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}.Notify(context.Background(), o))
	assert.Contains(t, buf.String(), "rehearsal reminder")
	assert.Contains(t, buf.String(), "rehearsal_id=r1")
	assert.Contains(t, buf.String(), "venue_id=v1")
}
