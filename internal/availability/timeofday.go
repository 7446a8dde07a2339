package availability

import (
	"fmt"
	"strings"

	"github.com/example/rehearsal-scheduler/internal/interval"
)

// MinutesPerDay is the exclusive upper bound of a start TimeOfDay and the
// inclusive upper bound of an end TimeOfDay ("24:00").
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

// At builds a TimeOfDay from hour and minute.
func At(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM" (or "HH:MM:SS", seconds ignored). Every
// component is exactly two digits. "24:00" is accepted as the end of day.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: time of day %q must be HH:MM", interval.ErrInvalidInterval, value)
	}
	components := make([]int, len(parts))
	for i, part := range parts {
		n, ok := twoDigits(part)
		if !ok {
			return 0, fmt.Errorf("%w: time of day %q must be HH:MM", interval.ErrInvalidInterval, value)
		}
		components[i] = n
	}
	hour, minute := components[0], components[1]
	if minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("%w: time of day %q out of range", interval.ErrInvalidInterval, value)
	}
	if len(components) == 3 && (components[2] > 59 || (hour == 24 && components[2] != 0)) {
		return 0, fmt.Errorf("%w: time of day %q out of range", interval.ErrInvalidInterval, value)
	}
	return At(hour, minute), nil
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func validateRange(start, end TimeOfDay) error {
	if start < 0 || start >= MinutesPerDay {
		return fmt.Errorf("%w: start %s out of range", interval.ErrInvalidInterval, start)
	}
	if end <= 0 || end > MinutesPerDay {
		return fmt.Errorf("%w: end %s out of range", interval.ErrInvalidInterval, end)
	}
	if start == end {
		return fmt.Errorf("%w: slot %s-%s is empty", interval.ErrInvalidInterval, start, end)
	}
	return nil
}
