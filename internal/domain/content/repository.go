package content

import "context"

// Repository persists sources, their items and the per-subscriber cursors
// that remember how far each subscriber has progressed through a source.
type Repository interface {
	CreateSource(ctx context.Context, s *Source) error
	GetSource(ctx context.Context, id int64) (*Source, error)
	GetSourceByName(ctx context.Context, name string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	DeleteSource(ctx context.Context, id int64) error

	// AddItem appends the item at the end of its source and fills Position.
	AddItem(ctx context.Context, item *Item) error
	RemoveItem(ctx context.Context, itemID int64) error
	ListItems(ctx context.Context, sourceID int64) ([]*Item, error)

	// GetCursor returns 0 when the subscriber has never received the source.
	GetCursor(ctx context.Context, subscriberID, sourceID int64) (int64, error)
	SetCursor(ctx context.Context, subscriberID, sourceID int64, index int64) error
	// GetCycleCursor returns the rotation position of one schedule's cycle
	// sources for the subscriber, 0 when nothing was delivered yet.
	GetCycleCursor(ctx context.Context, subscriberID, scheduleID int64) (int, error)
	SetCycleCursor(ctx context.Context, subscriberID, scheduleID int64, index int) error
	// ResetCursors clears both item and cycle cursors of the subscriber.
	ResetCursors(ctx context.Context, subscriberID int64) error
}
