package delivery

import (
	"context"

	"study_delivery_bot/internal/domain/schedule"
)

// Repository persists delivery records. Insert must be insert-or-conflict:
// a second record for the same (subscriber, day number) or the same
// (subscriber, schedule, delivery date) is refused, not overwritten.
type Repository interface {
	Insert(ctx context.Context, r *Record) error
	GetByDay(ctx context.Context, subscriberID int64, dayNumber int) (*Record, error)
	FindForDate(ctx context.Context, subscriberID, scheduleID int64, date schedule.Date) (*Record, error)
	// UpdateStatus persists r's status only if the stored status is still from.
	UpdateStatus(ctx context.Context, r *Record, from Status) error
	ListBySubscriber(ctx context.Context, subscriberID int64) ([]*Record, error)
	ListBySchedule(ctx context.Context, scheduleID int64, limit int) ([]*Record, error)
	DeleteBySubscriber(ctx context.Context, subscriberID int64) (int64, error)
	// MaxDay returns the highest recorded day number, 0 without history.
	MaxDay(ctx context.Context, subscriberID int64) (int, error)
}
