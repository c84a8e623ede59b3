package store

import (
	"context"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/delivery"
	"study_delivery_bot/internal/domain/schedule"
	"study_delivery_bot/internal/domain/subscriber"
)

// Store groups the repositories behind one transaction boundary.
type Store interface {
	Contents() content.Repository
	Schedules() schedule.Repository
	Subscribers() subscriber.Repository
	Deliveries() delivery.Repository

	// InTx runs fn with a Store whose repositories share one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	// Calling InTx on a transactional Store reuses the open transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
