package schedule

import "context"

// Repository defines the operations for persisting schedule definitions.
type Repository interface {
	Create(ctx context.Context, def *Definition) error
	GetByID(ctx context.Context, id int64) (*Definition, error)
	GetByName(ctx context.Context, name string) (*Definition, error)
	Update(ctx context.Context, def *Definition) error
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Definition, error)
	ListAll(ctx context.Context) ([]*Definition, error)
}
