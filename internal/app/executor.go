package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/delivery"
	"study_delivery_bot/internal/domain/notifier"
	"study_delivery_bot/internal/domain/schedule"
	"study_delivery_bot/internal/domain/store"
	"study_delivery_bot/internal/domain/subscriber"
	idb "study_delivery_bot/internal/infra/database"
)

// Button actions carried by the daily digest.
const (
	ActionAckDone    = "ack_done"
	ActionAckNotDone = "ack_not_done"
)

// Outcome of one Execute call.
type Outcome string

const (
	OutcomeSent             Outcome = "sent"
	OutcomeFailed           Outcome = "failed"
	OutcomeAlreadyDelivered Outcome = "already_delivered"
)

type ExecutionResult struct {
	Outcome Outcome
	Record  *delivery.Record
}

// AckResult describes the effect of an acknowledgment. Changed is false when
// the same value had already been recorded.
type AckResult struct {
	Record  *delivery.Record
	Streak  int
	Changed bool
}

// DeliveryExecutor performs a single firing of a schedule for one subscriber
// and records acknowledgments for delivered days.
type DeliveryExecutor struct {
	store       store.Store
	notifier    notifier.Notifier
	retry       RetryPolicy
	sendTimeout time.Duration
	logger      *logrus.Entry
	now         func() time.Time
}

func NewDeliveryExecutor(st store.Store, n notifier.Notifier, retry RetryPolicy, sendTimeout time.Duration, logger *logrus.Entry) *DeliveryExecutor {
	return &DeliveryExecutor{
		store:       st,
		notifier:    n,
		retry:       retry,
		sendTimeout: sendTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Execute delivers today's content of def to sub. It is idempotent per
// (subscriber, schedule, local date): a second call for the same date
// reports OutcomeAlreadyDelivered without sending anything.
//
// A send that still fails after all retries is recorded as a failed day
// and leaves every rotation cursor where it was.
func (e *DeliveryExecutor) Execute(ctx context.Context, def *schedule.Definition, sub *subscriber.Subscriber, today schedule.Date) (*ExecutionResult, error) {
	log := e.logger.WithFields(logrus.Fields{
		"schedule_id":   def.ID,
		"subscriber_id": sub.ID,
		"delivery_date": today.String(),
	})

	existing, err := e.store.Deliveries().FindForDate(ctx, sub.ID, def.ID, today)
	if err == nil {
		log.Debug("Delivery already recorded for this date, skipping")
		return &ExecutionResult{Outcome: OutcomeAlreadyDelivered, Record: existing}, nil
	}
	if !errors.Is(err, idb.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing delivery: %w", err)
	}

	plan, nextCycle, err := e.plan(ctx, def, sub, log)
	if err != nil {
		return nil, err
	}
	day, err := e.reserveDay(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	log = log.WithField("day", day)

	attempts, sendErr := e.send(ctx, sub, day, plan, log)
	if sendErr != nil {
		log.WithError(sendErr).WithField("attempts", attempts).Error("Delivery failed after retries")
		return e.recordFailure(ctx, def, sub, today, day, plan, attempts, sendErr, log)
	}
	return e.recordSuccess(ctx, def, sub, today, day, plan, nextCycle, attempts, log)
}

// plan resolves the items of one firing. Fixed sources are always included;
// at most one cycle source joins them. Sources without items are skipped.
// The returned cycle position is nil when the schedule does not rotate.
func (e *DeliveryExecutor) plan(ctx context.Context, def *schedule.Definition, sub *subscriber.Subscriber, log *logrus.Entry) ([]plannedItem, *int, error) {
	sourceIDs := def.SourceIDs
	var nextCycle *int

	if def.Mode == schedule.ModeAllAtOnce {
		sourceIDs = def.AllSourceIDs()
	} else if n := len(def.CycleSourceIDs); n > 0 {
		cursor, err := e.store.Contents().GetCycleCursor(ctx, sub.ID, def.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load cycle cursor: %w", err)
		}
		pos, err := content.Position(cursor, n)
		if err != nil {
			return nil, nil, err
		}
		sourceIDs = append(append([]int64{}, def.SourceIDs...), def.CycleSourceIDs[pos])
		next, err := content.AdvanceCycle(pos, n)
		if err != nil {
			return nil, nil, err
		}
		nextCycle = &next
	}

	var plan []plannedItem
	for _, id := range sourceIDs {
		src, err := e.store.Contents().GetSource(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load source %d: %w", id, err)
		}
		items, err := e.store.Contents().ListItems(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list items of source %s: %w", src.Name, err)
		}

		if def.Mode == schedule.ModeAllAtOnce {
			all, err := content.SelectAll(items)
			if errors.Is(err, content.ErrEmptySource) {
				log.WithField("source", src.Name).Warn("Source has no items, skipping")
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			for _, it := range all {
				plan = append(plan, plannedItem{Source: src, Item: it})
			}
			continue
		}

		cursor, err := e.store.Contents().GetCursor(ctx, sub.ID, id)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load cursor for source %s: %w", src.Name, err)
		}
		item, next, err := content.Select(items, cursor)
		if errors.Is(err, content.ErrEmptySource) {
			log.WithField("source", src.Name).Warn("Source has no items, skipping")
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		plan = append(plan, plannedItem{Source: src, Item: item, NextIndex: next, Advance: true})
	}

	if len(plan) == 0 {
		return nil, nil, ErrNothingToDeliver
	}
	return plan, nextCycle, nil
}

// send delivers files as separate documents, then the digest with the
// acknowledgment buttons. It returns the total number of attempts.
func (e *DeliveryExecutor) send(ctx context.Context, sub *subscriber.Subscriber, day int, plan []plannedItem, log *logrus.Entry) (int, error) {
	total := 0
	for _, p := range plan {
		if p.Item.Kind != content.KindFile {
			continue
		}
		item, caption := p.Item, renderFileCaption(day, p)
		n, err := e.withRetry(ctx, log, func(ctx context.Context) error {
			_, err := e.notifier.Send(ctx, sub.ChatID, item, caption)
			return err
		})
		total += n
		if err != nil {
			return total, err
		}
	}

	digest, buttons := renderDigest(day, plan), ackButtons(day)
	n, err := e.withRetry(ctx, log, func(ctx context.Context) error {
		_, err := e.notifier.SendWithButtons(ctx, sub.ChatID, nil, digest, buttons)
		return err
	})
	return total + n, err
}

func (e *DeliveryExecutor) withRetry(ctx context.Context, log *logrus.Entry, fn func(ctx context.Context) error) (int, error) {
	return e.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if e.sendTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.sendTimeout)
		}
		defer cancel()
		err := fn(callCtx)
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("Send attempt failed")
		}
		return err
	})
}

// reserveDay claims the day number of a new delivery before anything is sent.
// The number never falls behind the recorded history.
func (e *DeliveryExecutor) reserveDay(ctx context.Context, subscriberID int64) (int, error) {
	last, err := e.store.Deliveries().MaxDay(ctx, subscriberID)
	if err != nil {
		return 0, fmt.Errorf("failed to load last day number: %w", err)
	}
	day, err := e.store.Subscribers().ReserveDay(ctx, subscriberID, last+1)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve day number: %w", err)
	}
	return day, nil
}

func (e *DeliveryExecutor) recordSuccess(ctx context.Context, def *schedule.Definition, sub *subscriber.Subscriber, today schedule.Date, day int, plan []plannedItem, nextCycle *int, attempts int, log *logrus.Entry) (*ExecutionResult, error) {
	sentAt := e.now().UTC()
	rec := &delivery.Record{
		SubscriberID: sub.ID,
		ScheduleID:   def.ID,
		DayNumber:    day,
		DeliveryDate: today,
		Contents:     contentRefs(plan),
		Status:       delivery.StatusPending,
		Attempts:     attempts,
		SentAt:       &sentAt,
	}

	err := e.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.Deliveries().Insert(ctx, rec); err != nil {
			return err
		}
		for _, p := range plan {
			if !p.Advance {
				continue
			}
			if err := tx.Contents().SetCursor(ctx, sub.ID, p.Source.ID, p.NextIndex); err != nil {
				return fmt.Errorf("failed to advance cursor for source %s: %w", p.Source.Name, err)
			}
		}
		if nextCycle == nil {
			return nil
		}
		if err := tx.Contents().SetCycleCursor(ctx, sub.ID, def.ID, *nextCycle); err != nil {
			return fmt.Errorf("failed to advance cycle cursor: %w", err)
		}
		return nil
	})
	if errors.Is(err, idb.ErrDuplicateRecord) {
		return e.duplicate(ctx, def, sub, today, day, log)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record delivery: %w", err)
	}

	log.WithField("items", len(plan)).Info("Delivery sent")
	return &ExecutionResult{Outcome: OutcomeSent, Record: rec}, nil
}

func (e *DeliveryExecutor) recordFailure(ctx context.Context, def *schedule.Definition, sub *subscriber.Subscriber, today schedule.Date, day int, plan []plannedItem, attempts int, sendErr error, log *logrus.Entry) (*ExecutionResult, error) {
	rec := &delivery.Record{
		SubscriberID: sub.ID,
		ScheduleID:   def.ID,
		DayNumber:    day,
		DeliveryDate: today,
		Contents:     contentRefs(plan),
		Status:       delivery.StatusFailed,
		LastError:    sendErr.Error(),
		Attempts:     attempts,
	}

	err := e.store.Deliveries().Insert(ctx, rec)
	if errors.Is(err, idb.ErrDuplicateRecord) {
		return e.duplicate(ctx, def, sub, today, day, log)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record failed delivery: %w", err)
	}
	return &ExecutionResult{Outcome: OutcomeFailed, Record: rec}, nil
}

// duplicate resolves an insert conflict. Only a record for the same
// schedule and date means the delivery already happened; a clash on the day
// number alone is an error.
func (e *DeliveryExecutor) duplicate(ctx context.Context, def *schedule.Definition, sub *subscriber.Subscriber, today schedule.Date, day int, log *logrus.Entry) (*ExecutionResult, error) {
	existing, err := e.store.Deliveries().FindForDate(ctx, sub.ID, def.ID, today)
	if err == nil {
		log.Warn("Delivery was recorded concurrently, keeping the existing record")
		return &ExecutionResult{Outcome: OutcomeAlreadyDelivered, Record: existing}, nil
	}
	if !errors.Is(err, idb.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing delivery: %w", err)
	}
	log.Error("Day number is taken by another delivery")
	return nil, fmt.Errorf("%w: day %d", ErrDayConflict, day)
}

// Acknowledge records done/not_done for a delivered day and refreshes the
// cached streak. Repeating the same value is a no-op; a different value for
// an already acknowledged day is refused.
func (e *DeliveryExecutor) Acknowledge(ctx context.Context, subscriberID int64, day int, ack delivery.Ack) (*AckResult, error) {
	var result *AckResult
	err := e.store.InTx(ctx, func(tx store.Store) error {
		rec, err := tx.Deliveries().GetByDay(ctx, subscriberID, day)
		if errors.Is(err, idb.ErrRecordNotFound) {
			return ErrNoPendingDelivery
		}
		if err != nil {
			return fmt.Errorf("failed to load delivery record: %w", err)
		}

		if rec.Status != delivery.StatusPending {
			result, err = e.settledAck(ctx, tx, rec, ack)
			return err
		}

		ackAt := e.now().UTC()
		rec.Status = ack.Status()
		rec.AcknowledgedAt = &ackAt
		err = tx.Deliveries().UpdateStatus(ctx, rec, delivery.StatusPending)
		if errors.Is(err, idb.ErrRecordChanged) {
			if rec, err = tx.Deliveries().GetByDay(ctx, subscriberID, day); err != nil {
				return fmt.Errorf("failed to reload delivery record: %w", err)
			}
			result, err = e.settledAck(ctx, tx, rec, ack)
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to update delivery record: %w", err)
		}

		history, err := tx.Deliveries().ListBySubscriber(ctx, subscriberID)
		if err != nil {
			return fmt.Errorf("failed to load delivery history: %w", err)
		}
		streak := delivery.CalculateStreak(history)
		if err := tx.Subscribers().SaveStreak(ctx, subscriberID, streak); err != nil {
			return fmt.Errorf("failed to save streak: %w", err)
		}
		result = &AckResult{Record: rec, Streak: streak, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"subscriber_id": subscriberID,
		"day":           day,
		"ack":           ack,
		"changed":       result.Changed,
	}).Info("Acknowledgment processed")
	return result, nil
}

// settledAck handles an acknowledgment for a record that is no longer pending.
func (e *DeliveryExecutor) settledAck(ctx context.Context, tx store.Store, rec *delivery.Record, ack delivery.Ack) (*AckResult, error) {
	switch {
	case !rec.Status.IsAcknowledged():
		return nil, ErrNoPendingDelivery
	case rec.Status != ack.Status():
		return nil, ErrConflictingAcknowledgment
	}
	st, err := tx.Subscribers().GetState(ctx, rec.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery state: %w", err)
	}
	return &AckResult{Record: rec, Streak: st.Streak}, nil
}

func ackButtons(day int) [][]notifier.Button {
	payload := strconv.Itoa(day)
	return [][]notifier.Button{{
		{Text: "✅ Done", Action: ActionAckDone, Payload: payload},
		{Text: "❌ Not done", Action: ActionAckNotDone, Payload: payload},
	}}
}

func contentRefs(plan []plannedItem) []delivery.ContentRef {
	refs := make([]delivery.ContentRef, 0, len(plan))
	for _, p := range plan {
		refs = append(refs, delivery.ContentRef{
			SourceID: p.Source.ID,
			ItemID:   p.Item.ID,
			Kind:     p.Item.Kind,
			Ref:      p.Item.Ref,
			Title:    p.Item.Title,
		})
	}
	return refs
}

// computeMetrics derives progress metrics from the stored history.
func computeMetrics(ctx context.Context, st store.Store, subscriberID int64, window int) (*delivery.Metrics, error) {
	state, err := st.Subscribers().GetState(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery state: %w", err)
	}
	history, err := st.Deliveries().ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery history: %w", err)
	}
	return delivery.Calculate(state.CurrentDay, history, window), nil
}
