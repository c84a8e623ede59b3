package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/delivery"
	"study_delivery_bot/internal/domain/schedule"
	"study_delivery_bot/internal/domain/store"
	"study_delivery_bot/internal/domain/subscriber"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
//
// Placeholders are written as $1..$N in order of first appearance, which
// both lib/pq and go-sqlite3 bind positionally.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements store.Store on top of database/sql.
type SQLStore struct {
	db   *sql.DB
	inTx bool

	contents    *SQLContentRepository
	schedules   *SQLScheduleRepository
	subscribers *SQLSubscriberRepository
	deliveries  *SQLDeliveryRepository
}

var _ store.Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB) *SQLStore {
	return newSQLStore(db, db, false)
}

func newSQLStore(db *sql.DB, q querier, inTx bool) *SQLStore {
	return &SQLStore{
		db:          db,
		inTx:        inTx,
		contents:    NewSQLContentRepository(q),
		schedules:   NewSQLScheduleRepository(q),
		subscribers: NewSQLSubscriberRepository(q),
		deliveries:  NewSQLDeliveryRepository(q),
	}
}

func (s *SQLStore) Contents() content.Repository       { return s.contents }
func (s *SQLStore) Schedules() schedule.Repository     { return s.schedules }
func (s *SQLStore) Subscribers() subscriber.Repository { return s.subscribers }
func (s *SQLStore) Deliveries() delivery.Repository    { return s.deliveries }

func (s *SQLStore) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if err := fn(newSQLStore(s.db, txn, true)); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullTime(t *sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
