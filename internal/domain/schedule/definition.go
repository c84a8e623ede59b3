package schedule

import "time"

// Frequency selects which qualifying days actually fire.
type Frequency string

const (
	FrequencyEvery     Frequency = "every"     // every day; selected days are all seven
	FrequencyWeekdays  Frequency = "weekdays"  // only the selected days
	FrequencyAlternate Frequency = "alternate" // every other qualifying day
)

// DeliveryMode controls how much content a single firing delivers.
type DeliveryMode string

const (
	ModeSequential DeliveryMode = "sequential"  // one item per source, cursor advances
	ModeAllAtOnce  DeliveryMode = "all_at_once" // whole source at once, then completed
)

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusUpcoming: {StatusActive, StatusPaused, StatusCompleted},
	StatusActive:   {StatusPaused, StatusCompleted},
	StatusPaused:   {StatusActive, StatusCompleted},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Definition is an administrator configured delivery rule.
// Corresponds to the 'schedules' table plus 'schedule_sources'.
type Definition struct {
	ID   int64
	Name string `validate:"required,max=100"`

	// SourceIDs are delivered on every firing (e.g. English).
	SourceIDs []int64 `validate:"dive,gt=0"`
	// CycleSourceIDs form a rotation cycle; one bucket per firing
	// (e.g. History, Polity, Geography, Economics).
	CycleSourceIDs []int64 `validate:"dive,gt=0"`

	Frequency    Frequency `validate:"required,oneof=every weekdays alternate"`
	SelectedDays WeekdaySet
	StartDate    Date
	EndDate      *Date
	DeliveryTime TimeOfDay
	Timezone     string       `validate:"required,tzname"`
	Mode         DeliveryMode `validate:"required,oneof=sequential all_at_once"`
	Status       Status

	NextExecution *time.Time
	LastExecution *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AllSourceIDs returns the fixed sources followed by the cycle sources.
func (d *Definition) AllSourceIDs() []int64 {
	ids := make([]int64, 0, len(d.SourceIDs)+len(d.CycleSourceIDs))
	ids = append(ids, d.SourceIDs...)
	return append(ids, d.CycleSourceIDs...)
}

// References reports whether the schedule delivers from the source.
func (d *Definition) References(sourceID int64) bool {
	for _, id := range d.AllSourceIDs() {
		if id == sourceID {
			return true
		}
	}
	return false
}

// HasFired is true once the schedule produced at least one delivery run.
func (d *Definition) HasFired() bool {
	return d.LastExecution != nil
}

// IsDue reports whether the stored next execution has been reached.
func (d *Definition) IsDue(now time.Time) bool {
	return d.NextExecution != nil && !now.Before(*d.NextExecution)
}

// Location loads the schedule's IANA time zone.
func (d *Definition) Location() (*time.Location, error) {
	return LoadLocation(d.Timezone)
}

// LocalDate returns the calendar date of t in the schedule's time zone.
func (d *Definition) LocalDate(t time.Time) (Date, error) {
	loc, err := d.Location()
	if err != nil {
		return Date{}, err
	}
	return DateOf(t.In(loc)), nil
}
