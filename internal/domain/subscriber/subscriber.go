package subscriber

import (
	"context"
	"time"
)

// Subscriber is a registered chat that receives deliveries.
// Subscribers are never hard-deleted, only deactivated. A blocked
// subscriber was deactivated by an admin and cannot reactivate itself.
type Subscriber struct {
	ID        int64
	ChatID    int64
	FirstName string
	Username  string
	IsActive  bool
	IsBlocked bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Receives reports whether deliveries should be sent to the subscriber.
func (s *Subscriber) Receives() bool {
	return s.IsActive && !s.IsBlocked
}

// DeliveryState is the mutable progress of one subscriber.
// Streak is a cache; delivery history is the source of truth.
type DeliveryState struct {
	SubscriberID int64
	CurrentDay   int
	Streak       int
	UpdatedAt    time.Time
}

// Repository defines the operations for persisting subscribers and their state.
type Repository interface {
	Create(ctx context.Context, s *Subscriber) error
	GetByID(ctx context.Context, id int64) (*Subscriber, error)
	GetByChatID(ctx context.Context, chatID int64) (*Subscriber, error)
	Update(ctx context.Context, s *Subscriber) error
	// ListActive returns subscribers that are active and not blocked.
	ListActive(ctx context.Context) ([]*Subscriber, error)
	ListAll(ctx context.Context) ([]*Subscriber, error)

	// GetState returns a zero state when none was stored yet.
	GetState(ctx context.Context, subscriberID int64) (*DeliveryState, error)
	SaveState(ctx context.Context, st *DeliveryState) error
	// SaveStreak writes the cached streak and leaves the day counter alone.
	SaveStreak(ctx context.Context, subscriberID int64, streak int) error
	// ReserveDay atomically claims the next day number, never returning
	// less than atLeast.
	ReserveDay(ctx context.Context, subscriberID int64, atLeast int) (int, error)
}
