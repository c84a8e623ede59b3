package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"study_delivery_bot/internal/domain/content"
)

type SQLContentRepository struct {
	q querier
}

func NewSQLContentRepository(q querier) *SQLContentRepository {
	return &SQLContentRepository{q: q}
}

func (r *SQLContentRepository) CreateSource(ctx context.Context, s *content.Source) error {
	now := time.Now().UTC()
	query := `INSERT INTO content_sources (name, title, created_at, updated_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT DO NOTHING
               RETURNING id`
	err := r.q.QueryRowContext(ctx, query, s.Name, s.Title, now, now).Scan(&s.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicateSourceName
		}
		return fmt.Errorf("error creating content source: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

func (r *SQLContentRepository) GetSource(ctx context.Context, id int64) (*content.Source, error) {
	query := `SELECT id, name, title, created_at, updated_at FROM content_sources WHERE id = $1`
	s := &content.Source{}
	err := r.q.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("error getting content source by ID: %w", err)
	}
	return s, nil
}

func (r *SQLContentRepository) GetSourceByName(ctx context.Context, name string) (*content.Source, error) {
	query := `SELECT id, name, title, created_at, updated_at FROM content_sources WHERE name = $1`
	s := &content.Source{}
	err := r.q.QueryRowContext(ctx, query, name).Scan(&s.ID, &s.Name, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("error getting content source by name: %w", err)
	}
	return s, nil
}

func (r *SQLContentRepository) ListSources(ctx context.Context) ([]*content.Source, error) {
	query := `SELECT id, name, title, created_at, updated_at FROM content_sources ORDER BY name`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing content sources: %w", err)
	}
	defer rows.Close()

	sources := make([]*content.Source, 0)
	for rows.Next() {
		s := &content.Source{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning content source: %w", err)
		}
		sources = append(sources, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content sources: %w", err)
	}
	return sources, nil
}

func (r *SQLContentRepository) DeleteSource(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM content_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting content source: %w", err)
	}
	return expectAffected(res, ErrSourceNotFound)
}

func (r *SQLContentRepository) AddItem(ctx context.Context, item *content.Item) error {
	now := time.Now().UTC()
	query := `INSERT INTO content_items (source_id, position, kind, ref, title, created_at)
               VALUES ($1, (SELECT COALESCE(MAX(position), -1) + 1 FROM content_items WHERE source_id = $2), $3, $4, $5, $6)
               RETURNING id, position`
	err := r.q.QueryRowContext(ctx, query, item.SourceID, item.SourceID, item.Kind, item.Ref, item.Title, now).Scan(&item.ID, &item.Position)
	if err != nil {
		return fmt.Errorf("error adding content item: %w", err)
	}
	item.CreatedAt = now
	return nil
}

func (r *SQLContentRepository) RemoveItem(ctx context.Context, itemID int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM content_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("error removing content item: %w", err)
	}
	return expectAffected(res, ErrItemNotFound)
}

func (r *SQLContentRepository) ListItems(ctx context.Context, sourceID int64) ([]*content.Item, error) {
	query := `SELECT id, source_id, position, kind, ref, title, created_at
               FROM content_items WHERE source_id = $1 ORDER BY position, id`
	rows, err := r.q.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("error listing content items: %w", err)
	}
	defer rows.Close()

	items := make([]*content.Item, 0)
	for rows.Next() {
		it := &content.Item{}
		if err := rows.Scan(&it.ID, &it.SourceID, &it.Position, &it.Kind, &it.Ref, &it.Title, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning content item: %w", err)
		}
		items = append(items, it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content items: %w", err)
	}
	return items, nil
}

func (r *SQLContentRepository) GetCursor(ctx context.Context, subscriberID, sourceID int64) (int64, error) {
	query := `SELECT idx FROM content_cursors WHERE subscriber_id = $1 AND source_id = $2`
	var idx int64
	err := r.q.QueryRowContext(ctx, query, subscriberID, sourceID).Scan(&idx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("error getting content cursor: %w", err)
	}
	return idx, nil
}

func (r *SQLContentRepository) SetCursor(ctx context.Context, subscriberID, sourceID int64, index int64) error {
	query := `INSERT INTO content_cursors (subscriber_id, source_id, idx, updated_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (subscriber_id, source_id) DO UPDATE SET idx = excluded.idx, updated_at = excluded.updated_at`
	if _, err := r.q.ExecContext(ctx, query, subscriberID, sourceID, index, time.Now().UTC()); err != nil {
		return fmt.Errorf("error setting content cursor: %w", err)
	}
	return nil
}

func (r *SQLContentRepository) GetCycleCursor(ctx context.Context, subscriberID, scheduleID int64) (int, error) {
	query := `SELECT idx FROM cycle_cursors WHERE subscriber_id = $1 AND schedule_id = $2`
	var idx int
	err := r.q.QueryRowContext(ctx, query, subscriberID, scheduleID).Scan(&idx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("error getting cycle cursor: %w", err)
	}
	return idx, nil
}

func (r *SQLContentRepository) SetCycleCursor(ctx context.Context, subscriberID, scheduleID int64, index int) error {
	query := `INSERT INTO cycle_cursors (subscriber_id, schedule_id, idx, updated_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (subscriber_id, schedule_id) DO UPDATE SET idx = excluded.idx, updated_at = excluded.updated_at`
	if _, err := r.q.ExecContext(ctx, query, subscriberID, scheduleID, index, time.Now().UTC()); err != nil {
		return fmt.Errorf("error setting cycle cursor: %w", err)
	}
	return nil
}

func (r *SQLContentRepository) ResetCursors(ctx context.Context, subscriberID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM content_cursors WHERE subscriber_id = $1`, subscriberID); err != nil {
		return fmt.Errorf("error resetting content cursors: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cycle_cursors WHERE subscriber_id = $1`, subscriberID); err != nil {
		return fmt.Errorf("error resetting cycle cursors: %w", err)
	}
	return nil
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
