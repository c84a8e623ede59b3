package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is the only day-of-week representation used by schedules.
// 0 is Sunday, which matches time.Weekday, so conversions never shift.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// WeekdayOf returns the weekday of t in t's own location.
func WeekdayOf(t time.Time) Weekday {
	return Weekday(t.Weekday())
}

func (d Weekday) Valid() bool {
	return d >= Sunday && d <= Saturday
}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// ParseWeekday accepts short ("mon") and long ("monday") English names.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, short := range weekdayNames {
		if s == short || s == strings.ToLower(time.Weekday(i).String()) {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// WeekdaySet is a bitmask of weekdays; bit i is Weekday(i).
type WeekdaySet uint8

const allWeekdays WeekdaySet = 1<<7 - 1

func NewWeekdaySet(days ...Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d.Valid() {
			s |= 1 << uint(d)
		}
	}
	return s
}

// AllWeekdays is the set used by the every-occurrence frequency.
func AllWeekdays() WeekdaySet {
	return allWeekdays
}

func (s WeekdaySet) Contains(d Weekday) bool {
	return d.Valid() && s&(1<<uint(d)) != 0
}

func (s WeekdaySet) IsEmpty() bool {
	return s&allWeekdays == 0
}

func (s WeekdaySet) Len() int {
	n := 0
	for d := Sunday; d <= Saturday; d++ {
		if s.Contains(d) {
			n++
		}
	}
	return n
}

func (s WeekdaySet) Days() []Weekday {
	days := make([]Weekday, 0, 7)
	for d := Sunday; d <= Saturday; d++ {
		if s.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

func (s WeekdaySet) String() string {
	days := s.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	return strings.Join(names, ",")
}

// ParseWeekdaySet parses a comma separated list such as "mon,wed,fri".
func ParseWeekdaySet(s string) (WeekdaySet, error) {
	var set WeekdaySet
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, err := ParseWeekday(part)
		if err != nil {
			return 0, err
		}
		set |= NewWeekdaySet(d)
	}
	return set, nil
}
