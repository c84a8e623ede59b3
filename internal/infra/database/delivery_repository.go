package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"study_delivery_bot/internal/domain/delivery"
	"study_delivery_bot/internal/domain/schedule"
)

type SQLDeliveryRepository struct {
	q querier
}

func NewSQLDeliveryRepository(q querier) *SQLDeliveryRepository {
	return &SQLDeliveryRepository{q: q}
}

const recordColumns = `id, subscriber_id, schedule_id, day_number, delivery_date, contents, status,
               last_error, attempts, sent_at, acknowledged_at, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*delivery.Record, error) {
	var (
		rec                    delivery.Record
		deliveryDate, contents string
		sentAt, acknowledgedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.SubscriberID, &rec.ScheduleID, &rec.DayNumber, &deliveryDate, &contents, &rec.Status,
		&rec.LastError, &rec.Attempts, &sentAt, &acknowledgedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rec.DeliveryDate, err = schedule.ParseDate(deliveryDate); err != nil {
		return nil, fmt.Errorf("delivery record %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(contents), &rec.Contents); err != nil {
		return nil, fmt.Errorf("delivery record %d: invalid contents: %w", rec.ID, err)
	}
	rec.SentAt = nullTime(&sentAt)
	rec.AcknowledgedAt = nullTime(&acknowledgedAt)
	return &rec, nil
}

// Insert stores a new record. ErrDuplicateRecord is returned when either
// uniqueness constraint is hit; the existing row is left untouched.
func (r *SQLDeliveryRepository) Insert(ctx context.Context, rec *delivery.Record) error {
	contents := rec.Contents
	if contents == nil {
		contents = []delivery.ContentRef{}
	}
	payload, err := json.Marshal(contents)
	if err != nil {
		return fmt.Errorf("error encoding delivery contents: %w", err)
	}

	now := time.Now().UTC()
	query := `INSERT INTO delivery_records (subscriber_id, schedule_id, day_number, delivery_date, contents, status,
                   last_error, attempts, sent_at, acknowledged_at, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
               ON CONFLICT DO NOTHING
               RETURNING id`
	err = r.q.QueryRowContext(ctx, query, rec.SubscriberID, rec.ScheduleID, rec.DayNumber, rec.DeliveryDate.String(),
		string(payload), rec.Status, rec.LastError, rec.Attempts, toNullTime(rec.SentAt), toNullTime(rec.AcknowledgedAt),
		now, now).Scan(&rec.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("error inserting delivery record: %w", err)
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	return nil
}

func (r *SQLDeliveryRepository) GetByDay(ctx context.Context, subscriberID int64, dayNumber int) (*delivery.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records WHERE subscriber_id = $1 AND day_number = $2`
	rec, err := scanRecord(r.q.QueryRowContext(ctx, query, subscriberID, dayNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("error getting delivery record by day: %w", err)
	}
	return rec, nil
}

func (r *SQLDeliveryRepository) FindForDate(ctx context.Context, subscriberID, scheduleID int64, date schedule.Date) (*delivery.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records
               WHERE subscriber_id = $1 AND schedule_id = $2 AND delivery_date = $3`
	rec, err := scanRecord(r.q.QueryRowContext(ctx, query, subscriberID, scheduleID, date.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("error getting delivery record by date: %w", err)
	}
	return rec, nil
}

func (r *SQLDeliveryRepository) UpdateStatus(ctx context.Context, rec *delivery.Record, from delivery.Status) error {
	now := time.Now().UTC()
	query := `UPDATE delivery_records
               SET status = $1, last_error = $2, acknowledged_at = $3, updated_at = $4
               WHERE id = $5 AND status = $6`
	res, err := r.q.ExecContext(ctx, query, rec.Status, rec.LastError, toNullTime(rec.AcknowledgedAt), now, rec.ID, from)
	if err != nil {
		return fmt.Errorf("error updating delivery record: %w", err)
	}
	if err := expectAffected(res, ErrRecordChanged); err != nil {
		return err
	}
	rec.UpdatedAt = now
	return nil
}

// ListBySubscriber returns the subscriber's history ordered by day number.
func (r *SQLDeliveryRepository) ListBySubscriber(ctx context.Context, subscriberID int64) ([]*delivery.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records WHERE subscriber_id = $1 ORDER BY day_number`
	return r.list(ctx, query, subscriberID)
}

// ListBySchedule returns the newest records produced by a schedule.
func (r *SQLDeliveryRepository) ListBySchedule(ctx context.Context, scheduleID int64, limit int) ([]*delivery.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records
               WHERE schedule_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return r.list(ctx, query, scheduleID, limit)
}

func (r *SQLDeliveryRepository) DeleteBySubscriber(ctx context.Context, subscriberID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM delivery_records WHERE subscriber_id = $1`, subscriberID)
	if err != nil {
		return 0, fmt.Errorf("error deleting delivery records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n, nil
}

func (r *SQLDeliveryRepository) list(ctx context.Context, query string, args ...any) ([]*delivery.Record, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing delivery records: %w", err)
	}
	defer rows.Close()

	records := make([]*delivery.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning delivery record: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery records: %w", err)
	}
	return records, nil
}

func (r *SQLDeliveryRepository) MaxDay(ctx context.Context, subscriberID int64) (int, error) {
	var day int
	query := `SELECT COALESCE(MAX(day_number), 0) FROM delivery_records WHERE subscriber_id = $1`
	if err := r.q.QueryRowContext(ctx, query, subscriberID).Scan(&day); err != nil {
		return 0, fmt.Errorf("error getting last day number: %w", err)
	}
	return day, nil
}
