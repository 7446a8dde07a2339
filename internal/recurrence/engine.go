package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/rehearsal-scheduler/internal/interval"
)

// DefaultMaxOccurrences bounds how many occurrences a single expansion may yield.
const DefaultMaxOccurrences = 366

// Frequency represents supported recurrence cadences.
type Frequency string

const (
	// FrequencyWeekly repeats every Interval weeks on DayOfWeek.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyBiweekly repeats every 2*Interval weeks on DayOfWeek.
	FrequencyBiweekly Frequency = "biweekly"
	// FrequencyMonthly repeats every Interval months on the base day of month,
	// clamped to the last day of shorter months.
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency validates a textual frequency.
func ParseFrequency(value string) (Frequency, error) {
	switch f := Frequency(value); f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidPattern, value)
	}
}

// Pattern describes a repeating rule anchored to a base occurrence.
type Pattern struct {
	Frequency Frequency
	// DayOfWeek is required for weekly and biweekly patterns.
	DayOfWeek *time.Weekday
	Interval  int
	// EndDate is an exclusive bound: only occurrences starting before it are
	// produced. The zero value leaves the series open-ended; the query window
	// still bounds expansion.
	EndDate time.Time
}

// Occurrence is one concrete instance of a recurring rehearsal. Index counts
// from the first occurrence of the series, independent of the query window.
type Occurrence struct {
	Index int
	interval.Interval
}

var (
	// ErrInvalidPattern indicates a malformed recurrence pattern.
	ErrInvalidPattern = errors.New("recurrence: invalid pattern")
	// ErrOccurrenceLimitExceeded indicates expansion would yield more than the
	// configured maximum number of occurrences.
	ErrOccurrenceLimitExceeded = errors.New("recurrence: occurrence limit exceeded")
)

// Engine expands recurrence patterns into occurrences.
type Engine struct {
	location       *time.Location
	maxOccurrences int
}

// Option customises an Engine.
type Option func(*Engine)

// WithMaxOccurrences overrides DefaultMaxOccurrences. Non-positive values are ignored.
func WithMaxOccurrences(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxOccurrences = n
		}
	}
}

// NewEngine constructs an Engine that evaluates wall-clock rules in loc.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{location: loc, maxOccurrences: DefaultMaxOccurrences}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the zone used for wall-clock arithmetic.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Validate checks the pattern against its base occurrence without expanding it.
func (e *Engine) Validate(p Pattern, baseStart time.Time) error {
	switch p.Frequency {
	case FrequencyWeekly, FrequencyBiweekly:
		if p.DayOfWeek == nil {
			return fmt.Errorf("%w: day of week is required for %s patterns", ErrInvalidPattern, p.Frequency)
		}
		if *p.DayOfWeek < time.Sunday || *p.DayOfWeek > time.Saturday {
			return fmt.Errorf("%w: day of week %d out of range", ErrInvalidPattern, *p.DayOfWeek)
		}
	case FrequencyMonthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidPattern, p.Frequency)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidPattern, p.Interval)
	}
	if !p.EndDate.IsZero() && !p.EndDate.After(baseStart) {
		return fmt.Errorf("%w: end date %s is not after base start", ErrInvalidPattern, p.EndDate.Format(time.RFC3339))
	}
	return nil
}

// Expand prepares the occurrences of p whose start falls within
// [windowStart, windowEnd] and before the pattern's end date. Each
// occurrence lasts baseEnd - baseStart. The returned Sequence is evaluated
// lazily and may be iterated any number of times.
func (e *Engine) Expand(p Pattern, baseStart, baseEnd, windowStart, windowEnd time.Time) (Sequence, error) {
	loc := e.Location()

	base, err := interval.New(baseStart, baseEnd)
	if err != nil {
		return Sequence{}, err
	}
	if windowEnd.Before(windowStart) {
		return Sequence{}, fmt.Errorf("%w: window end precedes window start", interval.ErrInvalidInterval)
	}
	if err := e.Validate(p, baseStart); err != nil {
		return Sequence{}, err
	}

	anchor := baseStart.In(loc)
	seq := Sequence{
		location:    loc,
		frequency:   p.Frequency,
		anchor:      anchor,
		duration:    base.Duration(),
		windowStart: windowStart.In(loc),
		upper:       windowEnd.In(loc),
		limit:       e.maxOccurrences,
	}
	if seq.limit <= 0 {
		seq.limit = DefaultMaxOccurrences
	}

	switch p.Frequency {
	case FrequencyWeekly:
		seq.stepDays = 7 * p.Interval
	case FrequencyBiweekly:
		seq.stepDays = 14 * p.Interval
	case FrequencyMonthly:
		seq.stepMonths = p.Interval
	}
	if seq.stepDays > 0 {
		offset := (int(*p.DayOfWeek) - int(anchor.Weekday()) + 7) % 7
		seq.anchor = anchor.AddDate(0, 0, offset)
	}

	if !p.EndDate.IsZero() {
		if last := p.EndDate.In(loc).Add(-time.Nanosecond); last.Before(seq.upper) {
			seq.upper = last
		}
	}

	seq.firstIndex = seq.seek()
	return seq, nil
}

// Sequence is a finite, restartable series of occurrences derived purely from
// the arguments given to Engine.Expand.
type Sequence struct {
	location    *time.Location
	frequency   Frequency
	anchor      time.Time
	duration    time.Duration
	stepDays    int
	stepMonths  int
	windowStart time.Time
	upper       time.Time
	firstIndex  int
	limit       int
}

// Iterator returns a fresh cursor positioned before the first occurrence.
func (s Sequence) Iterator() *Iterator {
	return &Iterator{seq: s, next: s.firstIndex}
}

// Collect materialises the whole sequence.
func (s Sequence) Collect() ([]Occurrence, error) {
	it := s.Iterator()
	out := make([]Occurrence, 0)
	for it.Next() {
		out = append(out, it.Occurrence())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// IsZero reports whether the sequence was never produced by Expand.
func (s Sequence) IsZero() bool {
	return s.location == nil
}

func (s Sequence) startAt(index int) time.Time {
	if s.stepMonths > 0 {
		return addMonthsClamped(s.anchor, index*s.stepMonths)
	}
	return s.anchor.AddDate(0, 0, index*s.stepDays)
}

// seek finds the first index whose start is not before the window start.
func (s Sequence) seek() int {
	if !s.anchor.Before(s.windowStart) {
		return 0
	}

	var estimate int
	if s.stepMonths > 0 {
		months := (s.windowStart.Year()-s.anchor.Year())*12 + int(s.windowStart.Month()) - int(s.anchor.Month())
		estimate = months/s.stepMonths - 1
	} else {
		days := int(s.windowStart.Sub(s.anchor).Hours() / 24)
		estimate = days/s.stepDays - 1
	}
	if estimate < 0 {
		estimate = 0
	}
	for s.startAt(estimate).Before(s.windowStart) {
		estimate++
	}
	return estimate
}

// Iterator walks a Sequence in the manner of bufio.Scanner.
type Iterator struct {
	seq     Sequence
	next    int
	emitted int
	current Occurrence
	done    bool
	err     error
}

// Next advances to the next occurrence, reporting false when the sequence is
// exhausted or an error occurred.
func (it *Iterator) Next() bool {
	if it == nil || it.done || it.seq.IsZero() {
		return false
	}

	start := it.seq.startAt(it.next)
	if start.After(it.seq.upper) {
		it.done = true
		return false
	}
	if it.emitted >= it.seq.limit {
		it.err = fmt.Errorf("%w: more than %d occurrences in window", ErrOccurrenceLimitExceeded, it.seq.limit)
		it.done = true
		return false
	}

	occurrence, err := interval.OfDuration(start, it.seq.duration)
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.current = Occurrence{Index: it.next, Interval: occurrence}
	it.next++
	it.emitted++
	return true
}

// Occurrence returns the occurrence produced by the last successful Next.
func (it *Iterator) Occurrence() Occurrence {
	return it.current
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// addMonthsClamped adds months to t keeping its day of month, clamped to the
// last valid day of the target month. The wall-clock time is preserved.
func addMonthsClamped(t time.Time, months int) time.Time {
	loc := t.Location()
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, loc)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
