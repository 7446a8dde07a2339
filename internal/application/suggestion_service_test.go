package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rehearsal-scheduler/internal/persistence"
	"github.com/example/rehearsal-scheduler/internal/recurrence"
	"github.com/example/rehearsal-scheduler/internal/testfixtures"
)

func newSuggestionFixture(t *testing.T) (*SuggestionService, *memStore) {
	t.Helper()
	ctx := context.Background()
	store := newMemStore()
	testfixtures.SeedBand(t, store, testfixtures.NewBand("g1", "alice", "bob"))

	require.NoError(t, store.ReplaceAvailability(ctx, persistence.Availability{
		UserID: "alice",
		Weekly: []persistence.WeeklyAvailability{{Weekday: int(time.Monday), StartMinute: 18 * 60, EndMinute: 22 * 60}},
		OneTime: []persistence.AvailabilityException{
			{Date: time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC), StartMinute: 10 * 60, EndMinute: 11*60 + 30},
		},
	}))
	require.NoError(t, store.ReplaceAvailability(ctx, persistence.Availability{
		UserID: "bob",
		Weekly: []persistence.WeeklyAvailability{
			{Weekday: int(time.Monday), StartMinute: 19 * 60, EndMinute: 23 * 60},
			{Weekday: int(time.Wednesday), StartMinute: 9 * 60, EndMinute: 12 * 60},
		},
	}))

	svc := NewSuggestionService(store, store, store, recurrence.NewEngine(time.UTC), nil)
	return svc, store
}

func suggestionWeek() (time.Time, time.Time) {
	start := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 7)
}

func TestSuggestTimes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	from, to := suggestionWeek()

	t.Run("common evening", func(t *testing.T) {
		svc, _ := newSuggestionFixture(t)
		got, err := svc.SuggestTimes(ctx, SuggestTimesParams{
			Principal: Principal{MemberID: "bob"}, GroupID: "g1",
			WindowStart: from, WindowEnd: to, PreferredDuration: 2 * time.Hour,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, Suggestion{
			Start:       time.Date(2024, time.June, 3, 19, 0, 0, 0, time.UTC),
			End:         time.Date(2024, time.June, 3, 21, 0, 0, 0, time.UTC),
			WindowStart: time.Date(2024, time.June, 3, 19, 0, 0, 0, time.UTC),
			WindowEnd:   time.Date(2024, time.June, 3, 22, 0, 0, 0, time.UTC),
		}, got[0])
	})

	t.Run("longest window first", func(t *testing.T) {
		svc, _ := newSuggestionFixture(t)
		got, err := svc.SuggestTimes(ctx, SuggestTimesParams{
			Principal: Principal{MemberID: "bob"}, GroupID: "g1",
			WindowStart: from, WindowEnd: to, PreferredDuration: time.Hour,
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, time.Monday, got[0].Start.Weekday())
		assert.Equal(t, time.Date(2024, time.June, 5, 10, 0, 0, 0, time.UTC), got[1].Start)

		limited, err := svc.SuggestTimes(ctx, SuggestTimesParams{
			Principal: Principal{MemberID: "bob"}, GroupID: "g1",
			WindowStart: from, WindowEnd: to, PreferredDuration: time.Hour, Limit: 1,
		})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("venue bookings filter candidates", func(t *testing.T) {
		svc, store := newSuggestionFixture(t)
		require.NoError(t, store.CreateVenue(ctx, testfixtures.NewVenue("v1")))
		monday := time.Date(2024, time.June, 3, 19, 0, 0, 0, time.UTC)
		require.NoError(t, store.CreateRehearsal(ctx, testfixtures.NewRehearsal("booked", "g9", "zed",
			testfixtures.AtVenue("v1"), testfixtures.Spanning(monday, monday.Add(time.Hour))), nil, nil))

		got, err := svc.SuggestTimes(ctx, SuggestTimesParams{
			Principal: Principal{MemberID: "alice"}, GroupID: "g1",
			WindowStart: from, WindowEnd: to, PreferredDuration: time.Hour, VenueID: venue("v1"),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, time.Wednesday, got[0].Start.Weekday())
	})

	t.Run("member without availability leaves nothing in common", func(t *testing.T) {
		svc, store := newSuggestionFixture(t)
		store.addMember("g1", "carol", string(RoleMember))
		got, err := svc.SuggestTimes(ctx, SuggestTimesParams{
			Principal: Principal{MemberID: "alice"}, GroupID: "g1",
			WindowStart: from, WindowEnd: to, PreferredDuration: time.Hour,
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("rejections", func(t *testing.T) {
		svc, _ := newSuggestionFixture(t)
		_, err := svc.SuggestTimes(ctx, SuggestTimesParams{
			Principal: Principal{MemberID: "mallory"}, GroupID: "g1",
			WindowStart: from, WindowEnd: to, PreferredDuration: time.Hour,
		})
		assert.ErrorIs(t, err, ErrUnauthorized)

		_, err = svc.SuggestTimes(ctx, SuggestTimesParams{
			Principal: Principal{MemberID: "alice"}, GroupID: "g1",
			WindowStart: from, WindowEnd: from.Add(MaxSuggestionWindow + time.Hour), PreferredDuration: time.Hour,
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "window")

		_, err = svc.SuggestTimes(ctx, SuggestTimesParams{
			Principal: Principal{MemberID: "alice"}, GroupID: "g1",
			WindowStart: to, WindowEnd: from, MinDuration: -time.Minute,
		})
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "window")
		assert.Contains(t, vErr.FieldErrors, "preferred_duration")
		assert.Contains(t, vErr.FieldErrors, "min_duration")
	})
}
