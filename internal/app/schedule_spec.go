package app

import (
	"context"
	"fmt"
	"strings"

	"study_delivery_bot/internal/domain/schedule"
)

// ScheduleSpec describes a schedule the way an administrator writes it:
// sources by name, dates and times as text.
type ScheduleSpec struct {
	Name      string   `yaml:"name"`
	Sources   []string `yaml:"sources"`
	Cycle     []string `yaml:"cycle"`
	Frequency string   `yaml:"frequency"`
	Days      string   `yaml:"days"`
	Time      string   `yaml:"time"`
	Start     string   `yaml:"start"`
	End       string   `yaml:"end"`
	Timezone  string   `yaml:"timezone"`
	Mode      string   `yaml:"mode"`
}

// BuildDefinition resolves a spec into a Definition ready for CreateSchedule.
func (s *AdminService) BuildDefinition(ctx context.Context, spec ScheduleSpec) (*schedule.Definition, error) {
	def := &schedule.Definition{
		Name:      strings.TrimSpace(spec.Name),
		Frequency: schedule.Frequency(strings.ToLower(spec.Frequency)),
		Timezone:  spec.Timezone,
		Mode:      schedule.DeliveryMode(strings.ToLower(spec.Mode)),
	}
	if def.Frequency == "" {
		def.Frequency = schedule.FrequencyEvery
	}
	if def.Timezone == "" {
		def.Timezone = s.defaultTimezone
	}

	var err error
	if spec.Days != "" {
		if def.SelectedDays, err = schedule.ParseWeekdaySet(spec.Days); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	}
	if def.DeliveryTime, err = schedule.ParseTimeOfDay(spec.Time); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if def.StartDate, err = schedule.ParseDate(spec.Start); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if spec.End != "" {
		end, err := schedule.ParseDate(spec.End)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		def.EndDate = &end
	}

	if def.SourceIDs, err = s.resolveSources(ctx, spec.Sources); err != nil {
		return nil, err
	}
	if def.CycleSourceIDs, err = s.resolveSources(ctx, spec.Cycle); err != nil {
		return nil, err
	}
	return def, nil
}

func (s *AdminService) resolveSources(ctx context.Context, names []string) ([]int64, error) {
	var ids []int64
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		src, err := s.store.Contents().GetSourceByName(ctx, NormalizeSourceName(name))
		if err != nil {
			return nil, fmt.Errorf("%w: source %q: %v", ErrInvalidSchedule, name, err)
		}
		ids = append(ids, src.ID)
	}
	return ids, nil
}
