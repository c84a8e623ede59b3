package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/schedule"
	"study_delivery_bot/internal/domain/store"
	idb "study_delivery_bot/internal/infra/database"
)

// newValidator returns a validator that knows the "tzname" tag.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tzname", func(fl validator.FieldLevel) bool {
		_, err := schedule.LoadLocation(fl.Field().String())
		return err == nil
	})
	return v
}

// normalizeDefinition fills derived fields before validation.
func normalizeDefinition(def *schedule.Definition) {
	def.Name = strings.TrimSpace(def.Name)
	if def.Frequency == schedule.FrequencyEvery {
		def.SelectedDays = schedule.AllWeekdays()
	}
	if def.Mode == "" {
		def.Mode = schedule.ModeSequential
	}
}

func (s *AdminService) validateDefinition(ctx context.Context, tx store.Store, def *schedule.Definition) error {
	if err := s.validate.Struct(def); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if def.SelectedDays.IsEmpty() {
		return fmt.Errorf("%w: no weekdays selected", ErrInvalidSchedule)
	}
	if def.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidSchedule)
	}
	if def.EndDate != nil && def.EndDate.Before(def.StartDate) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidSchedule, def.EndDate, def.StartDate)
	}

	ids := def.AllSourceIDs()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one content source is required", ErrInvalidSchedule)
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: source %d listed twice", ErrInvalidSchedule, id)
		}
		seen[id] = true

		src, err := tx.Contents().GetSource(ctx, id)
		if errors.Is(err, idb.ErrSourceNotFound) {
			return fmt.Errorf("%w: source %d does not exist", ErrInvalidSchedule, id)
		}
		if err != nil {
			return fmt.Errorf("failed to load source %d: %w", id, err)
		}
		items, err := tx.Contents().ListItems(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list items of source %s: %w", src.Name, err)
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: source %q: %v", ErrInvalidSchedule, src.Name, ErrEmptySource)
		}
	}
	return nil
}

// validateItem checks an item before it is stored. Videos must be absolute
// URLs; files are either URLs, local paths or channel file ids.
func validateItem(kind content.Kind, ref string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidItem, kind)
	}
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("%w: empty reference", ErrInvalidItem)
	}
	if kind == content.KindVideo {
		u, err := url.Parse(ref)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: %q is not an http(s) link", ErrInvalidItem, ref)
		}
	}
	return nil
}
