package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"study_delivery_bot/internal/domain/subscriber"
)

type SQLSubscriberRepository struct {
	q querier
}

func NewSQLSubscriberRepository(q querier) *SQLSubscriberRepository {
	return &SQLSubscriberRepository{q: q}
}

const subscriberColumns = `id, chat_id, first_name, username, is_active, is_blocked, created_at, updated_at`

func scanSubscriber(row interface{ Scan(...any) error }) (*subscriber.Subscriber, error) {
	s := &subscriber.Subscriber{}
	err := row.Scan(&s.ID, &s.ChatID, &s.FirstName, &s.Username, &s.IsActive, &s.IsBlocked, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *SQLSubscriberRepository) Create(ctx context.Context, s *subscriber.Subscriber) error {
	now := time.Now().UTC()
	query := `INSERT INTO subscribers (chat_id, first_name, username, is_active, is_blocked, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               ON CONFLICT DO NOTHING
               RETURNING id`
	err := r.q.QueryRowContext(ctx, query, s.ChatID, s.FirstName, s.Username, s.IsActive, s.IsBlocked, now, now).Scan(&s.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicateChatID
		}
		return fmt.Errorf("error creating subscriber: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

func (r *SQLSubscriberRepository) GetByID(ctx context.Context, id int64) (*subscriber.Subscriber, error) {
	s, err := scanSubscriber(r.q.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("error getting subscriber by ID: %w", err)
	}
	return s, nil
}

func (r *SQLSubscriberRepository) GetByChatID(ctx context.Context, chatID int64) (*subscriber.Subscriber, error) {
	s, err := scanSubscriber(r.q.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE chat_id = $1`, chatID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("error getting subscriber by chat ID: %w", err)
	}
	return s, nil
}

func (r *SQLSubscriberRepository) Update(ctx context.Context, s *subscriber.Subscriber) error {
	now := time.Now().UTC()
	query := `UPDATE subscribers
               SET first_name = $1, username = $2, is_active = $3, is_blocked = $4, updated_at = $5
               WHERE id = $6`
	res, err := r.q.ExecContext(ctx, query, s.FirstName, s.Username, s.IsActive, s.IsBlocked, now, s.ID)
	if err != nil {
		return fmt.Errorf("error updating subscriber: %w", err)
	}
	if err := expectAffected(res, ErrSubscriberNotFound); err != nil {
		return err
	}
	s.UpdatedAt = now
	return nil
}

func (r *SQLSubscriberRepository) ListActive(ctx context.Context) ([]*subscriber.Subscriber, error) {
	return r.list(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE is_active = $1 AND is_blocked = $2 ORDER BY id`, true, false)
}

func (r *SQLSubscriberRepository) ListAll(ctx context.Context) ([]*subscriber.Subscriber, error) {
	return r.list(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY id`)
}

func (r *SQLSubscriberRepository) list(ctx context.Context, query string, args ...any) ([]*subscriber.Subscriber, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := make([]*subscriber.Subscriber, 0)
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning subscriber: %w", err)
		}
		subscribers = append(subscribers, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscribers: %w", err)
	}
	return subscribers, nil
}

func (r *SQLSubscriberRepository) GetState(ctx context.Context, subscriberID int64) (*subscriber.DeliveryState, error) {
	query := `SELECT subscriber_id, current_day, streak, updated_at
               FROM delivery_states WHERE subscriber_id = $1`
	st := &subscriber.DeliveryState{}
	err := r.q.QueryRowContext(ctx, query, subscriberID).Scan(&st.SubscriberID, &st.CurrentDay, &st.Streak, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &subscriber.DeliveryState{SubscriberID: subscriberID}, nil
		}
		return nil, fmt.Errorf("error getting delivery state: %w", err)
	}
	return st, nil
}

func (r *SQLSubscriberRepository) SaveState(ctx context.Context, st *subscriber.DeliveryState) error {
	now := time.Now().UTC()
	query := `INSERT INTO delivery_states (subscriber_id, current_day, streak, updated_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (subscriber_id) DO UPDATE
               SET current_day = excluded.current_day, streak = excluded.streak, updated_at = excluded.updated_at`
	if _, err := r.q.ExecContext(ctx, query, st.SubscriberID, st.CurrentDay, st.Streak, now); err != nil {
		return fmt.Errorf("error saving delivery state: %w", err)
	}
	st.UpdatedAt = now
	return nil
}

func (r *SQLSubscriberRepository) SaveStreak(ctx context.Context, subscriberID int64, streak int) error {
	query := `INSERT INTO delivery_states (subscriber_id, current_day, streak, updated_at)
               VALUES ($1, 0, $2, $3)
               ON CONFLICT (subscriber_id) DO UPDATE
               SET streak = excluded.streak, updated_at = excluded.updated_at`
	if _, err := r.q.ExecContext(ctx, query, subscriberID, streak, time.Now().UTC()); err != nil {
		return fmt.Errorf("error saving streak: %w", err)
	}
	return nil
}

// ReserveDay increments current_day in a single statement, so the row lock
// taken by the upsert serializes concurrent reservations.
func (r *SQLSubscriberRepository) ReserveDay(ctx context.Context, subscriberID int64, atLeast int) (int, error) {
	query := `INSERT INTO delivery_states (subscriber_id, current_day, streak, updated_at)
               VALUES ($1, $2, 0, $3)
               ON CONFLICT (subscriber_id) DO UPDATE
               SET current_day = CASE
                       WHEN delivery_states.current_day + 1 > excluded.current_day THEN delivery_states.current_day + 1
                       ELSE excluded.current_day
                   END,
                   updated_at = excluded.updated_at
               RETURNING current_day`
	var day int
	if err := r.q.QueryRowContext(ctx, query, subscriberID, atLeast, time.Now().UTC()).Scan(&day); err != nil {
		return 0, fmt.Errorf("error reserving day number: %w", err)
	}
	return day, nil
}
