// Package calendar exports rehearsal occurrences as iCalendar (RFC 5545)
// feeds and renders recurrence patterns as RRULEs.
package calendar

import (
	"fmt"
	"io"
	"time"

	ical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/example/rehearsal-scheduler/internal/recurrence"
)

// ProductID identifies the feeds this package writes.
const ProductID = "-//rehearsal-scheduler//EN"

// Event is a single VEVENT. When Rule is set the event describes a whole
// series starting at Start instead of one occurrence.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Rule        *rrule.ROption
}

// OccurrenceUID builds a stable identifier for the index-th occurrence of a rehearsal.
func OccurrenceUID(rehearsalID string, index int) string {
	return fmt.Sprintf("%s-%d@rehearsal-scheduler", rehearsalID, index)
}

// Encode writes events as one VCALENDAR. stamp becomes every event's DTSTAMP.
func Encode(w io.Writer, events []Event, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	for _, event := range events {
		if event.UID == "" {
			return fmt.Errorf("calendar: event %q has no uid", event.Summary)
		}
		cal.Children = append(cal.Children, toVEvent(event, stamp))
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("calendar: encode: %w", err)
	}
	return nil
}

func toVEvent(event Event, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, event.UID)
	ve.Props.SetText(ical.PropSummary, event.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, event.Start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, event.End)

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.Rule != nil {
		ve.Props.SetRecurrenceRule(event.Rule)
	}
	return ve
}

// SeriesRule renders p, anchored at baseStart, as an RRULE that yields the
// same starts as recurrence.Engine.Expand. DTSTART is moved to the first
// occurrence so weekly intervals count from the same week the engine does,
// and monthly rules on days 29 to 31 pick the last existing day of shorter
// months.
func SeriesRule(p recurrence.Pattern, baseStart time.Time, loc *time.Location) (*rrule.ROption, error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := recurrence.NewEngine(loc).Validate(p, baseStart); err != nil {
		return nil, err
	}

	start := baseStart.In(loc)
	opt := &rrule.ROption{Interval: p.Interval, Dtstart: start}

	switch p.Frequency {
	case recurrence.FrequencyWeekly, recurrence.FrequencyBiweekly:
		opt.Freq = rrule.WEEKLY
		if p.Frequency == recurrence.FrequencyBiweekly {
			opt.Interval = 2 * p.Interval
		}
		offset := (int(*p.DayOfWeek) - int(start.Weekday()) + 7) % 7
		opt.Dtstart = start.AddDate(0, 0, offset)
		opt.Byweekday = []rrule.Weekday{weekday(*p.DayOfWeek)}
	case recurrence.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		if day := start.Day(); day > 28 {
			for d := 28; d <= day; d++ {
				opt.Bymonthday = append(opt.Bymonthday, d)
			}
			opt.Bysetpos = []int{-1}
		}
	}

	if !p.EndDate.IsZero() {
		opt.Until = p.EndDate.In(loc).Add(-time.Second)
	}
	return opt, nil
}

func weekday(d time.Weekday) rrule.Weekday {
	switch d {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
