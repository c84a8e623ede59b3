package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/delivery"
	"study_delivery_bot/internal/domain/schedule"
	"study_delivery_bot/internal/domain/store"
	"study_delivery_bot/internal/domain/subscriber"
	idb "study_delivery_bot/internal/infra/database"
)

// SourceOverview is a source together with its item count.
type SourceOverview struct {
	Source *content.Source
	Items  int
}

// AdminService holds the operations available to the bot administrator:
// content and schedule management plus the engine controls.
type AdminService struct {
	store           store.Store
	runner          *EngineRunner
	validate        *validator.Validate
	adminTelegramID int64
	metricsWindow   int
	defaultTimezone string
	now             func() time.Time
}

func NewAdminService(st store.Store, runner *EngineRunner, adminID int64, metricsWindow int, defaultTimezone string) *AdminService {
	if metricsWindow <= 0 {
		metricsWindow = delivery.DefaultWindow
	}
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &AdminService{
		store:           st,
		runner:          runner,
		validate:        newValidator(),
		adminTelegramID: adminID,
		metricsWindow:   metricsWindow,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}

// IsAdmin reports whether the Telegram user is the configured administrator.
func (s *AdminService) IsAdmin(telegramID int64) bool {
	return telegramID == s.adminTelegramID
}

func (s *AdminService) authorize(performingAdminID int64) error {
	if !s.IsAdmin(performingAdminID) {
		return ErrAdminNotAuthorized
	}
	return nil
}

// NormalizeSourceName turns "Current Affairs" into "current_affairs".
func NormalizeSourceName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// CreateSource registers a new empty content source.
func (s *AdminService) CreateSource(ctx context.Context, performingAdminID int64, name, title string) (*content.Source, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	name = NormalizeSourceName(name)
	if name == "" {
		return nil, fmt.Errorf("source name is required")
	}

	src := &content.Source{Name: name, Title: strings.TrimSpace(title)}
	if err := s.store.Contents().CreateSource(ctx, src); err != nil {
		if errors.Is(err, idb.ErrDuplicateSourceName) {
			return nil, idb.ErrDuplicateSourceName
		}
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	return src, nil
}

// AddItem appends an item to the end of the named source.
func (s *AdminService) AddItem(ctx context.Context, performingAdminID int64, sourceName string, kind content.Kind, ref, title string) (*content.Item, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	if err := validateItem(kind, ref); err != nil {
		return nil, err
	}
	src, err := s.store.Contents().GetSourceByName(ctx, NormalizeSourceName(sourceName))
	if err != nil {
		return nil, err
	}

	item := &content.Item{SourceID: src.ID, Kind: kind, Ref: ref, Title: strings.TrimSpace(title)}
	if err := s.store.Contents().AddItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to add item to %s: %w", src.Name, err)
	}
	return item, nil
}

// RemoveItem deletes an item. Subscriber cursors past the new end wrap on
// their next delivery.
func (s *AdminService) RemoveItem(ctx context.Context, performingAdminID int64, itemID int64) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	return s.store.Contents().RemoveItem(ctx, itemID)
}

// DeleteSource removes a source that no live schedule references.
func (s *AdminService) DeleteSource(ctx context.Context, performingAdminID int64, sourceName string) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(tx store.Store) error {
		src, err := tx.Contents().GetSourceByName(ctx, NormalizeSourceName(sourceName))
		if err != nil {
			return err
		}
		defs, err := tx.Schedules().ListByStatus(ctx, schedule.StatusUpcoming, schedule.StatusActive, schedule.StatusPaused)
		if err != nil {
			return fmt.Errorf("failed to list schedules: %w", err)
		}
		for _, def := range defs {
			if def.References(src.ID) {
				return fmt.Errorf("%w: schedule %q", ErrSourceInUse, def.Name)
			}
		}
		return tx.Contents().DeleteSource(ctx, src.ID)
	})
}

func (s *AdminService) ListSources(ctx context.Context, performingAdminID int64) ([]*SourceOverview, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	sources, err := s.store.Contents().ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	overview := make([]*SourceOverview, 0, len(sources))
	for _, src := range sources {
		items, err := s.store.Contents().ListItems(ctx, src.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list items of %s: %w", src.Name, err)
		}
		overview = append(overview, &SourceOverview{Source: src, Items: len(items)})
	}
	return overview, nil
}

// CreateSchedule validates and stores a new schedule with its first
// next_execution already computed.
func (s *AdminService) CreateSchedule(ctx context.Context, performingAdminID int64, def *schedule.Definition) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	normalizeDefinition(def)
	now := s.now().UTC()

	return s.store.InTx(ctx, func(tx store.Store) error {
		if err := s.validateDefinition(ctx, tx, def); err != nil {
			return err
		}
		if err := s.plan(def, now); err != nil {
			return err
		}
		if err := tx.Schedules().Create(ctx, def); err != nil {
			return fmt.Errorf("failed to create schedule: %w", err)
		}
		return nil
	})
}

// UpdateSchedule replaces the editable fields of a schedule that has not
// fired yet.
func (s *AdminService) UpdateSchedule(ctx context.Context, performingAdminID int64, def *schedule.Definition) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	normalizeDefinition(def)
	now := s.now().UTC()

	return s.store.InTx(ctx, func(tx store.Store) error {
		existing, err := tx.Schedules().GetByID(ctx, def.ID)
		if err != nil {
			return err
		}
		if existing.Status == schedule.StatusCompleted {
			return ErrScheduleCompleted
		}
		if existing.HasFired() {
			return ErrScheduleAlreadyFired
		}
		if err := s.validateDefinition(ctx, tx, def); err != nil {
			return err
		}
		if err := s.plan(def, now); err != nil {
			return err
		}
		if existing.Status == schedule.StatusPaused {
			def.Status = schedule.StatusPaused
		}
		def.CreatedAt = existing.CreatedAt
		return tx.Schedules().Update(ctx, def)
	})
}

// plan sets the initial status and next_execution of a schedule being saved.
func (s *AdminService) plan(def *schedule.Definition, now time.Time) error {
	next, ok, err := schedule.NextExecution(def, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if !ok {
		return fmt.Errorf("%w: no delivery would ever happen, end date has passed", ErrInvalidSchedule)
	}
	today, err := def.LocalDate(now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	def.NextExecution = &next
	def.LastExecution = nil
	def.Status = schedule.StatusActive
	if today.Before(def.StartDate) {
		def.Status = schedule.StatusUpcoming
	}
	return nil
}

func (s *AdminService) PauseSchedule(ctx context.Context, performingAdminID int64, scheduleID int64) (*schedule.Definition, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	def, err := s.store.Schedules().GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !def.Status.CanTransitionTo(schedule.StatusPaused) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, def.Status, schedule.StatusPaused)
	}
	def.Status = schedule.StatusPaused
	if err := s.store.Schedules().Update(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to pause schedule: %w", err)
	}
	return def, nil
}

// ResumeSchedule reactivates a paused schedule. Occurrences missed while
// paused are not delivered; the next one is computed from now.
func (s *AdminService) ResumeSchedule(ctx context.Context, performingAdminID int64, scheduleID int64) (*schedule.Definition, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	def, err := s.store.Schedules().GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if def.Status != schedule.StatusPaused {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, def.Status, schedule.StatusActive)
	}

	next, ok, err := schedule.NextExecution(def, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to compute next execution: %w", err)
	}
	if ok {
		def.Status = schedule.StatusActive
		def.NextExecution = &next
	} else {
		def.Status = schedule.StatusCompleted
		def.NextExecution = nil
	}
	if err := s.store.Schedules().Update(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to resume schedule: %w", err)
	}
	return def, nil
}

func (s *AdminService) ListSchedules(ctx context.Context, performingAdminID int64) ([]*schedule.Definition, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.store.Schedules().ListAll(ctx)
}

// ScheduleHistory is a schedule with its most recent delivery records.
type ScheduleHistory struct {
	Schedule *schedule.Definition
	Records  []*delivery.Record
}

// GetScheduleHistory returns up to limit records of a schedule, newest first.
func (s *AdminService) GetScheduleHistory(ctx context.Context, performingAdminID int64, scheduleID int64, limit int) (*ScheduleHistory, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	def, err := s.store.Schedules().GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Deliveries().ListBySchedule(ctx, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule history: %w", err)
	}
	return &ScheduleHistory{Schedule: def, Records: records}, nil
}

// TriggerNow fires a schedule immediately for every active subscriber.
func (s *AdminService) TriggerNow(ctx context.Context, performingAdminID int64, scheduleID int64) (*FireSummary, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.runner.TriggerNow(ctx, scheduleID)
}

// ResetSubscriber erases a subscriber's history and progress. The next
// delivery starts again from day 1 at the beginning of every source.
// It returns the number of deleted delivery records.
func (s *AdminService) ResetSubscriber(ctx context.Context, performingAdminID int64, chatID int64) (int64, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return 0, err
	}
	var deleted int64
	err := s.store.InTx(ctx, func(tx store.Store) error {
		sub, err := tx.Subscribers().GetByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		if deleted, err = tx.Deliveries().DeleteBySubscriber(ctx, sub.ID); err != nil {
			return fmt.Errorf("failed to delete delivery history: %w", err)
		}
		if err := tx.Contents().ResetCursors(ctx, sub.ID); err != nil {
			return fmt.Errorf("failed to reset cursors: %w", err)
		}
		return tx.Subscribers().SaveState(ctx, &subscriber.DeliveryState{SubscriberID: sub.ID})
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// GetMetrics computes progress for the subscriber behind chatID.
func (s *AdminService) GetMetrics(ctx context.Context, performingAdminID int64, chatID int64) (*delivery.Metrics, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	sub, err := s.store.Subscribers().GetByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return computeMetrics(ctx, s.store, sub.ID, s.metricsWindow)
}

func (s *AdminService) ListSubscribers(ctx context.Context, performingAdminID int64) ([]*subscriber.Subscriber, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.store.Subscribers().ListAll(ctx)
}

// SetSubscriberBlocked blocks or unblocks a subscriber. A blocked
// subscriber receives nothing and cannot re-subscribe with /start.
func (s *AdminService) SetSubscriberBlocked(ctx context.Context, performingAdminID int64, chatID int64, blocked bool) (*subscriber.Subscriber, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	sub, err := s.store.Subscribers().GetByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	sub.IsBlocked = blocked
	sub.IsActive = !blocked
	if err := s.store.Subscribers().Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to update subscriber: %w", err)
	}
	return sub, nil
}
