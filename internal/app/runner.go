package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"study_delivery_bot/internal/domain/schedule"
	"study_delivery_bot/internal/domain/store"
	"study_delivery_bot/internal/infra/lock"
)

const engineLockKey = "engine"

// Locker grants a lease so that only one engine run is active at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (lock.UnlockFunc, error)
}

// FireSummary counts the outcomes of firing one schedule.
type FireSummary struct {
	ScheduleID       int64
	Recipients       int
	Sent             int
	Failed           int
	AlreadyDelivered int
	Errors           int
}

func (f *FireSummary) add(o FireSummary) {
	f.Recipients += o.Recipients
	f.Sent += o.Sent
	f.Failed += o.Failed
	f.AlreadyDelivered += o.AlreadyDelivered
	f.Errors += o.Errors
}

// TickSummary describes one engine pass.
type TickSummary struct {
	TickID     string
	Skipped    bool
	Checked    int
	Activated  int
	Fired      int
	Completed  int
	Errors     int
	Deliveries FireSummary
}

// EngineRunner is the periodic driver: it activates upcoming schedules,
// fires due ones and keeps next_execution up to date.
type EngineRunner struct {
	store    store.Store
	executor *DeliveryExecutor
	locker   Locker
	lockTTL  time.Duration
	logger   *logrus.Entry
	now      func() time.Time
}

func NewEngineRunner(st store.Store, executor *DeliveryExecutor, locker Locker, lockTTL time.Duration, logger *logrus.Entry) *EngineRunner {
	return &EngineRunner{
		store:    st,
		executor: executor,
		locker:   locker,
		lockTTL:  lockTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Tick runs one engine pass. A pass that finds the engine lease taken
// returns a skipped summary. A failing schedule does not stop the others.
func (r *EngineRunner) Tick(ctx context.Context) (*TickSummary, error) {
	summary := &TickSummary{TickID: uuid.NewString()}
	log := r.logger.WithField("tick_id", summary.TickID)

	unlock, err := r.locker.TryLock(ctx, engineLockKey, r.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		log.Info("Engine lease is held elsewhere, skipping tick")
		summary.Skipped = true
		return summary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire engine lease: %w", err)
	}
	defer r.release(unlock, log)

	now := r.now().UTC()
	defs, err := r.store.Schedules().ListByStatus(ctx, schedule.StatusUpcoming, schedule.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	for _, def := range defs {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("Tick interrupted, remaining schedules wait for the next tick")
			break
		}
		summary.Checked++
		if err := r.process(ctx, def, now, summary, log.WithField("schedule_id", def.ID)); err != nil {
			summary.Errors++
			log.WithError(err).WithField("schedule_id", def.ID).Error("Failed to process schedule")
		}
	}

	log.WithFields(logrus.Fields{
		"checked":   summary.Checked,
		"activated": summary.Activated,
		"fired":     summary.Fired,
		"completed": summary.Completed,
		"sent":      summary.Deliveries.Sent,
		"failed":    summary.Deliveries.Failed,
	}).Info("Tick finished")
	return summary, nil
}

func (r *EngineRunner) process(ctx context.Context, def *schedule.Definition, now time.Time, summary *TickSummary, log *logrus.Entry) error {
	if def.Status == schedule.StatusUpcoming {
		today, err := def.LocalDate(now)
		if err != nil {
			return err
		}
		if today.Before(def.StartDate) {
			return nil
		}
		def.Status = schedule.StatusActive
		if err := r.store.Schedules().Update(ctx, def); err != nil {
			return fmt.Errorf("failed to activate schedule: %w", err)
		}
		summary.Activated++
		log.Info("Schedule activated")
	}

	if def.NextExecution == nil {
		return r.advance(ctx, def, now, summary, log)
	}
	if !def.IsDue(now) {
		return nil
	}

	loc, err := def.Location()
	if err != nil {
		return err
	}
	today := schedule.DateOf(def.NextExecution.In(loc))
	fired, err := r.fire(ctx, def, today, log)
	if err != nil {
		return err
	}
	summary.Fired++
	summary.Deliveries.add(*fired)

	firedAt := now
	def.LastExecution = &firedAt
	if def.Mode == schedule.ModeAllAtOnce {
		return r.complete(ctx, def, summary, log)
	}
	return r.advance(ctx, def, now, summary, log)
}

// advance stores the next occurrence after now, or completes the schedule
// when it has none. If the occurrence cannot be computed only the other
// fields are saved so the schedule is retried on the next tick.
func (r *EngineRunner) advance(ctx context.Context, def *schedule.Definition, now time.Time, summary *TickSummary, log *logrus.Entry) error {
	next, ok, err := schedule.NextExecution(def, now)
	if err != nil {
		if uerr := r.store.Schedules().Update(ctx, def); uerr != nil {
			log.WithError(uerr).Error("Failed to save schedule")
		}
		return fmt.Errorf("failed to compute next execution: %w", err)
	}
	if !ok {
		return r.complete(ctx, def, summary, log)
	}
	def.NextExecution = &next
	if err := r.store.Schedules().Update(ctx, def); err != nil {
		return fmt.Errorf("failed to save next execution: %w", err)
	}
	log.WithField("next_execution", next).Debug("Next execution scheduled")
	return nil
}

func (r *EngineRunner) complete(ctx context.Context, def *schedule.Definition, summary *TickSummary, log *logrus.Entry) error {
	def.Status = schedule.StatusCompleted
	def.NextExecution = nil
	if err := r.store.Schedules().Update(ctx, def); err != nil {
		return fmt.Errorf("failed to complete schedule: %w", err)
	}
	summary.Completed++
	log.Info("Schedule completed")
	return nil
}

// fire runs the executor for every active subscriber. Subscriber failures
// are counted, not returned.
func (r *EngineRunner) fire(ctx context.Context, def *schedule.Definition, today schedule.Date, log *logrus.Entry) (*FireSummary, error) {
	subs, err := r.store.Subscribers().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscribers: %w", err)
	}

	fs := &FireSummary{ScheduleID: def.ID, Recipients: len(subs)}
	for _, sub := range subs {
		if ctx.Err() != nil {
			fs.Errors++
			continue
		}
		res, err := r.executor.Execute(ctx, def, sub, today)
		if err != nil {
			fs.Errors++
			log.WithError(err).WithField("subscriber_id", sub.ID).Error("Delivery could not be executed")
			continue
		}
		switch res.Outcome {
		case OutcomeSent:
			fs.Sent++
		case OutcomeFailed:
			fs.Failed++
		case OutcomeAlreadyDelivered:
			fs.AlreadyDelivered++
		}
	}
	return fs, nil
}

// TriggerNow fires an active schedule immediately for today's date in its
// time zone. Upcoming and paused schedules are refused. The regular next_execution is left unchanged; the per-date guard keeps a
// later regular firing on the same date from delivering twice.
func (r *EngineRunner) TriggerNow(ctx context.Context, scheduleID int64) (*FireSummary, error) {
	unlock, err := r.locker.TryLock(ctx, engineLockKey, r.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrEngineBusy
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire engine lease: %w", err)
	}
	log := r.logger.WithFields(logrus.Fields{"schedule_id": scheduleID, "trigger": "manual"})
	defer r.release(unlock, log)

	def, err := r.store.Schedules().GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	switch def.Status {
	case schedule.StatusCompleted:
		return nil, ErrScheduleCompleted
	case schedule.StatusActive:
	default:
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotActive, def.Status)
	}

	now := r.now().UTC()
	today, err := def.LocalDate(now)
	if err != nil {
		return nil, err
	}
	fs, err := r.fire(ctx, def, today, log)
	if err != nil {
		return nil, err
	}

	if fs.Sent > 0 || fs.Failed > 0 {
		firedAt := now
		def.LastExecution = &firedAt
		if def.Mode == schedule.ModeAllAtOnce {
			if err := r.complete(ctx, def, &TickSummary{}, log); err != nil {
				return nil, err
			}
		} else if err := r.store.Schedules().Update(ctx, def); err != nil {
			return nil, fmt.Errorf("failed to save schedule: %w", err)
		}
	}
	log.WithFields(logrus.Fields{
		"recipients": fs.Recipients,
		"sent":       fs.Sent,
		"failed":     fs.Failed,
	}).Info("Manual trigger finished")
	return fs, nil
}

func (r *EngineRunner) release(unlock lock.UnlockFunc, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := unlock(ctx); err != nil {
		log.WithError(err).Warn("Failed to release engine lease")
	}
}
