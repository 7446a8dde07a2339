package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rehearsal-scheduler/internal/interval"
)

// 2024-06-03 is a Monday.
var monday = time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func mustInterval(t *testing.T, start, end time.Time) interval.Interval {
	t.Helper()
	iv, err := interval.New(start, end)
	require.NoError(t, err)
	return iv
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	got, err := ParseTimeOfDay("18:30")
	require.NoError(t, err)
	assert.Equal(t, At(18, 30), got)
	assert.Equal(t, "18:30", got.String())

	got, err = ParseTimeOfDay("24:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(MinutesPerDay), got)

	got, err = ParseTimeOfDay("07:05:59")
	require.NoError(t, err)
	assert.Equal(t, At(7, 5), got)

	for _, bad := range []string{
		"", "18", "25:00", "24:30", "12:60", "ab:cd",
		"-0:30", "+1:00", "7:00", "07:5", "007:00", "18:+5", "18:30:6", "18:30:60", "24:00:01", "١٨:٣٠",
	} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, interval.ErrInvalidInterval, bad)
	}
}

func TestAggregator_FreeIntervals(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(time.UTC)
	windowStart := monday
	windowEnd := monday.AddDate(0, 0, 14)

	t.Run("materialises weekly and one-time slots and merges them", func(t *testing.T) {
		t.Parallel()

		member := Member{
			ID: "drummer",
			Weekly: []WeeklySlot{
				{Day: time.Monday, Start: At(18, 0), End: At(20, 0)},
				{Day: time.Monday, Start: At(20, 0), End: At(21, 0)},
			},
			OneTime: []OneTimeSlot{
				{Date: monday.AddDate(0, 0, 3), Start: At(10, 0), End: At(12, 0)},
			},
		}

		free, err := agg.FreeIntervals(member, windowStart, windowEnd)
		require.NoError(t, err)
		require.Len(t, free, 3)
		assert.True(t, free[0].Equal(mustInterval(t, at(monday, 18, 0), at(monday, 21, 0))), "adjacent weekly slots merge")
		assert.True(t, free[1].Equal(mustInterval(t, at(monday.AddDate(0, 0, 3), 10, 0), at(monday.AddDate(0, 0, 3), 12, 0))))
		assert.True(t, free[2].Equal(mustInterval(t, at(monday.AddDate(0, 0, 7), 18, 0), at(monday.AddDate(0, 0, 7), 21, 0))))
	})

	t.Run("clips slots to the window", func(t *testing.T) {
		t.Parallel()

		member := Member{Weekly: []WeeklySlot{{Day: time.Monday, Start: At(18, 0), End: At(22, 0)}}}

		free, err := agg.FreeIntervals(member, at(monday, 19, 0), at(monday, 20, 0))
		require.NoError(t, err)
		require.Len(t, free, 1)
		assert.True(t, free[0].Equal(mustInterval(t, at(monday, 19, 0), at(monday, 20, 0))))
	})

	t.Run("overnight slots spill into the next day", func(t *testing.T) {
		t.Parallel()

		member := Member{Weekly: []WeeklySlot{{Day: time.Sunday, Start: At(22, 0), End: At(2, 0)}}}

		free, err := agg.FreeIntervals(member, windowStart, windowStart.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, free, 1)
		assert.True(t, free[0].Equal(mustInterval(t, monday, at(monday, 2, 0))))
	})

	t.Run("one-time slot overlapping the weekly pattern merges", func(t *testing.T) {
		t.Parallel()

		member := Member{
			Weekly:  []WeeklySlot{{Day: time.Monday, Start: At(18, 0), End: At(20, 0)}},
			OneTime: []OneTimeSlot{{Date: monday, Start: At(19, 0), End: TimeOfDay(MinutesPerDay)}},
		}

		free, err := agg.FreeIntervals(member, windowStart, windowStart.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, free, 1)
		assert.True(t, free[0].Equal(mustInterval(t, at(monday, 18, 0), monday.AddDate(0, 0, 1))))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		t.Parallel()

		_, err := agg.FreeIntervals(Member{}, windowEnd, windowStart)
		assert.ErrorIs(t, err, interval.ErrInvalidInterval)

		_, err = agg.FreeIntervals(Member{Weekly: []WeeklySlot{{Day: time.Monday, Start: At(9, 0), End: At(9, 0)}}}, windowStart, windowEnd)
		assert.ErrorIs(t, err, interval.ErrInvalidInterval)

		_, err = agg.FreeIntervals(Member{Weekly: []WeeklySlot{{Day: 9, Start: At(9, 0), End: At(10, 0)}}}, windowStart, windowEnd)
		assert.ErrorIs(t, err, interval.ErrInvalidInterval)
	})

	t.Run("honours the aggregator location", func(t *testing.T) {
		t.Parallel()

		loc := time.FixedZone("UTC+2", 2*60*60)
		member := Member{Weekly: []WeeklySlot{{Day: time.Monday, Start: At(18, 0), End: At(20, 0)}}}

		free, err := NewAggregator(loc).FreeIntervals(member, windowStart, windowStart.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, free, 1)
		assert.True(t, free[0].Start().Equal(at(monday, 16, 0)))
	})
}

func TestIntersect(t *testing.T) {
	t.Parallel()

	t.Run("two overlapping evenings", func(t *testing.T) {
		t.Parallel()

		a := []interval.Interval{mustInterval(t, at(monday, 18, 0), at(monday, 21, 0))}
		b := []interval.Interval{mustInterval(t, at(monday, 19, 0), at(monday, 22, 0))}

		common := Intersect([][]interval.Interval{a, b}, 60*time.Minute)
		require.Len(t, common, 1)
		assert.True(t, common[0].Equal(mustInterval(t, at(monday, 19, 0), at(monday, 21, 0))))
	})

	t.Run("member without free time empties the result", func(t *testing.T) {
		t.Parallel()

		a := []interval.Interval{mustInterval(t, at(monday, 18, 0), at(monday, 21, 0))}
		assert.Empty(t, Intersect([][]interval.Interval{a, nil}, 0))
		assert.Empty(t, Intersect(nil, 0))
	})

	t.Run("discards short intervals and touching ranges", func(t *testing.T) {
		t.Parallel()

		a := []interval.Interval{
			mustInterval(t, at(monday, 9, 0), at(monday, 10, 0)),
			mustInterval(t, at(monday, 18, 0), at(monday, 21, 0)),
		}
		b := []interval.Interval{
			mustInterval(t, at(monday, 9, 30), at(monday, 12, 0)),
			mustInterval(t, at(monday, 21, 0), at(monday, 23, 0)),
		}

		common := Intersect([][]interval.Interval{a, b}, 45*time.Minute)
		assert.Empty(t, common)

		common = Intersect([][]interval.Interval{a, b}, 30*time.Minute)
		require.Len(t, common, 1)
		assert.True(t, common[0].Equal(mustInterval(t, at(monday, 9, 30), at(monday, 10, 0))))
	})

	t.Run("three members yield ordered common intervals", func(t *testing.T) {
		t.Parallel()

		tuesday := monday.AddDate(0, 0, 1)
		a := []interval.Interval{
			mustInterval(t, at(tuesday, 17, 0), at(tuesday, 23, 0)),
			mustInterval(t, at(monday, 17, 0), at(monday, 23, 0)),
		}
		b := []interval.Interval{
			mustInterval(t, at(monday, 18, 0), at(monday, 20, 0)),
			mustInterval(t, at(tuesday, 19, 0), at(tuesday, 22, 0)),
		}
		c := []interval.Interval{
			mustInterval(t, at(monday, 19, 0), at(tuesday, 21, 0)),
		}

		common := Intersect([][]interval.Interval{a, b, c}, time.Hour)
		require.Len(t, common, 2)
		assert.True(t, common[0].Equal(mustInterval(t, at(monday, 19, 0), at(monday, 20, 0))))
		assert.True(t, common[1].Equal(mustInterval(t, at(tuesday, 19, 0), at(tuesday, 21, 0))))
	})
}

func TestRankCandidates(t *testing.T) {
	t.Parallel()

	short := mustInterval(t, at(monday, 9, 0), at(monday, 10, 0))
	long := mustInterval(t, at(monday, 18, 0), at(monday, 21, 0))

	candidates, err := RankCandidates([]interval.Interval{short, long}, time.Hour, 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.True(t, candidates[0].Window.Equal(long), "more slack ranks first")
	assert.True(t, candidates[0].Slot.Equal(mustInterval(t, at(monday, 18, 0), at(monday, 19, 0))))
	assert.True(t, candidates[1].Window.Equal(short))

	t.Run("ties break on earliest start", func(t *testing.T) {
		later := mustInterval(t, at(monday.AddDate(0, 0, 1), 18, 0), at(monday.AddDate(0, 0, 1), 21, 0))
		ranked, err := RankCandidates([]interval.Interval{later, long}, time.Hour, 0)
		require.NoError(t, err)
		require.Len(t, ranked, 2)
		assert.True(t, ranked[0].Window.Equal(long))
	})

	t.Run("skips intervals shorter than the preferred duration and honours limit", func(t *testing.T) {
		ranked, err := RankCandidates([]interval.Interval{short, long}, 2*time.Hour, 5)
		require.NoError(t, err)
		require.Len(t, ranked, 1)

		ranked, err = RankCandidates([]interval.Interval{short, long}, time.Hour, 1)
		require.NoError(t, err)
		require.Len(t, ranked, 1)
		assert.True(t, ranked[0].Window.Equal(long))
	})

	t.Run("rejects non-positive duration", func(t *testing.T) {
		_, err := RankCandidates([]interval.Interval{long}, 0, 1)
		assert.ErrorIs(t, err, interval.ErrInvalidInterval)
	})
}
