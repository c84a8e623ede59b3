package schedule

import (
	"errors"
	"fmt"
	"time"
)

// maxScanDays bounds the forward scan so malformed definitions cannot loop.
const maxScanDays = 400

var ErrUnknownTimezone = errors.New("unknown time zone")
var ErrNoQualifyingDay = errors.New("no qualifying day within scan window")

// LoadLocation wraps time.LoadLocation with ErrUnknownTimezone. The empty
// string is rejected instead of silently meaning UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	return loc, nil
}

// NextExecution returns the first firing instant strictly after `after`, in UTC.
// ok is false when the schedule has lapsed past its end date.
func NextExecution(def *Definition, after time.Time) (next time.Time, ok bool, err error) {
	loc, err := def.Location()
	if err != nil {
		return time.Time{}, false, err
	}
	days := def.qualifyingDays()
	if days.IsEmpty() {
		return time.Time{}, false, fmt.Errorf("%w: no selected days", ErrNoQualifyingDay)
	}

	day := DateOf(after.In(loc))
	if day.Before(def.StartDate) {
		day = def.StartDate
	}

	for i := 0; i < maxScanDays; i, day = i+1, day.AddDays(1) {
		if def.EndDate != nil && day.After(*def.EndDate) {
			return time.Time{}, false, nil
		}
		if !def.fires(day, days) {
			continue
		}
		candidate := day.At(def.DeliveryTime, loc)
		if !candidate.After(after) {
			continue
		}
		return candidate.UTC(), true, nil
	}
	return time.Time{}, false, ErrNoQualifyingDay
}

// qualifyingDays normalizes the every-occurrence frequency to all seven days.
func (d *Definition) qualifyingDays() WeekdaySet {
	if d.Frequency == FrequencyEvery {
		return AllWeekdays()
	}
	return d.SelectedDays
}

func (d *Definition) fires(day Date, days WeekdaySet) bool {
	if !days.Contains(day.Weekday()) {
		return false
	}
	if d.Frequency != FrequencyAlternate {
		return true
	}
	return countQualifying(d.StartDate, day, days)%2 == 1
}

// countQualifying counts days in [from, to] whose weekday is in days.
func countQualifying(from, to Date, days WeekdaySet) int {
	if to.Before(from) {
		return 0
	}
	span := to.DaysSince(from) + 1
	count := (span / 7) * days.Len()
	for d := from.AddDays(span / 7 * 7); !d.After(to); d = d.AddDays(1) {
		if days.Contains(d.Weekday()) {
			count++
		}
	}
	return count
}
