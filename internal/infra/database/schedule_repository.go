package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"study_delivery_bot/internal/domain/schedule"
)

const (
	sourceRoleFixed = "fixed"
	sourceRoleCycle = "cycle"
)

type SQLScheduleRepository struct {
	q querier
}

func NewSQLScheduleRepository(q querier) *SQLScheduleRepository {
	return &SQLScheduleRepository{q: q}
}

const scheduleColumns = `id, name, frequency, selected_days, start_date, end_date, delivery_time, timezone,
               delivery_mode, status, next_execution, last_execution, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (*schedule.Definition, error) {
	var (
		def                          schedule.Definition
		selectedDays                 int
		startDate, deliveryTime      string
		endDate                      sql.NullString
		nextExecution, lastExecution sql.NullTime
	)
	err := row.Scan(&def.ID, &def.Name, &def.Frequency, &selectedDays, &startDate, &endDate, &deliveryTime,
		&def.Timezone, &def.Mode, &def.Status, &nextExecution, &lastExecution, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}

	def.SelectedDays = schedule.WeekdaySet(selectedDays)
	if def.StartDate, err = schedule.ParseDate(startDate); err != nil {
		return nil, fmt.Errorf("schedule %d: %w", def.ID, err)
	}
	if endDate.Valid {
		end, err := schedule.ParseDate(endDate.String)
		if err != nil {
			return nil, fmt.Errorf("schedule %d: %w", def.ID, err)
		}
		def.EndDate = &end
	}
	if def.DeliveryTime, err = schedule.ParseTimeOfDay(deliveryTime); err != nil {
		return nil, fmt.Errorf("schedule %d: %w", def.ID, err)
	}
	def.NextExecution = nullTime(&nextExecution)
	def.LastExecution = nullTime(&lastExecution)
	return &def, nil
}

func endDateValue(d *schedule.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func (r *SQLScheduleRepository) Create(ctx context.Context, def *schedule.Definition) error {
	now := time.Now().UTC()
	query := `INSERT INTO schedules (name, frequency, selected_days, start_date, end_date, delivery_time, timezone,
                   delivery_mode, status, next_execution, last_execution, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
               RETURNING id`
	err := r.q.QueryRowContext(ctx, query, def.Name, def.Frequency, int(def.SelectedDays), def.StartDate.String(),
		endDateValue(def.EndDate), def.DeliveryTime.String(), def.Timezone, def.Mode, def.Status,
		toNullTime(def.NextExecution), toNullTime(def.LastExecution), now, now).Scan(&def.ID)
	if err != nil {
		return fmt.Errorf("error creating schedule: %w", err)
	}
	def.CreatedAt, def.UpdatedAt = now, now
	return r.saveSources(ctx, def)
}

func (r *SQLScheduleRepository) GetByID(ctx context.Context, id int64) (*schedule.Definition, error) {
	def, err := scanSchedule(r.q.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("error getting schedule by ID: %w", err)
	}
	if err := r.loadSources(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (r *SQLScheduleRepository) GetByName(ctx context.Context, name string) (*schedule.Definition, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE name = $1 ORDER BY id LIMIT 1`
	def, err := scanSchedule(r.q.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("error getting schedule by name: %w", err)
	}
	if err := r.loadSources(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Update rewrites every column and the source lists of the schedule.
func (r *SQLScheduleRepository) Update(ctx context.Context, def *schedule.Definition) error {
	now := time.Now().UTC()
	query := `UPDATE schedules
               SET name = $1, frequency = $2, selected_days = $3, start_date = $4, end_date = $5,
                   delivery_time = $6, timezone = $7, delivery_mode = $8, status = $9,
                   next_execution = $10, last_execution = $11, updated_at = $12
               WHERE id = $13`
	res, err := r.q.ExecContext(ctx, query, def.Name, def.Frequency, int(def.SelectedDays), def.StartDate.String(),
		endDateValue(def.EndDate), def.DeliveryTime.String(), def.Timezone, def.Mode, def.Status,
		toNullTime(def.NextExecution), toNullTime(def.LastExecution), now, def.ID)
	if err != nil {
		return fmt.Errorf("error updating schedule: %w", err)
	}
	if err := expectAffected(res, ErrScheduleNotFound); err != nil {
		return err
	}
	def.UpdatedAt = now

	if _, err := r.q.ExecContext(ctx, `DELETE FROM schedule_sources WHERE schedule_id = $1`, def.ID); err != nil {
		return fmt.Errorf("error clearing schedule sources: %w", err)
	}
	return r.saveSources(ctx, def)
}

func (r *SQLScheduleRepository) ListByStatus(ctx context.Context, statuses ...schedule.Status) ([]*schedule.Definition, error) {
	if len(statuses) == 0 {
		return []*schedule.Definition{}, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s
	}
	query := `SELECT ` + scheduleColumns + ` FROM schedules
               WHERE status IN (` + strings.Join(placeholders, ", ") + `) ORDER BY id`
	return r.list(ctx, query, args...)
}

func (r *SQLScheduleRepository) ListAll(ctx context.Context) ([]*schedule.Definition, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY id`)
}

func (r *SQLScheduleRepository) list(ctx context.Context, query string, args ...any) ([]*schedule.Definition, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing schedules: %w", err)
	}

	defs := make([]*schedule.Definition, 0)
	for rows.Next() {
		def, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning schedule: %w", err)
		}
		defs = append(defs, def)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	rows.Close()

	// lib/pq cannot run a second query while rows are open on the same connection.
	for _, def := range defs {
		if err := r.loadSources(ctx, def); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

func (r *SQLScheduleRepository) saveSources(ctx context.Context, def *schedule.Definition) error {
	query := `INSERT INTO schedule_sources (schedule_id, source_id, role, position) VALUES ($1, $2, $3, $4)`
	insert := func(role string, ids []int64) error {
		for pos, id := range ids {
			if _, err := r.q.ExecContext(ctx, query, def.ID, id, role, pos); err != nil {
				return fmt.Errorf("error saving schedule source %d: %w", id, err)
			}
		}
		return nil
	}
	if err := insert(sourceRoleFixed, def.SourceIDs); err != nil {
		return err
	}
	return insert(sourceRoleCycle, def.CycleSourceIDs)
}

func (r *SQLScheduleRepository) loadSources(ctx context.Context, def *schedule.Definition) error {
	query := `SELECT source_id, role FROM schedule_sources WHERE schedule_id = $1 ORDER BY role, position`
	rows, err := r.q.QueryContext(ctx, query, def.ID)
	if err != nil {
		return fmt.Errorf("error loading schedule sources: %w", err)
	}
	defer rows.Close()

	def.SourceIDs, def.CycleSourceIDs = nil, nil
	for rows.Next() {
		var (
			id   int64
			role string
		)
		if err := rows.Scan(&id, &role); err != nil {
			return fmt.Errorf("error scanning schedule source: %w", err)
		}
		if role == sourceRoleCycle {
			def.CycleSourceIDs = append(def.CycleSourceIDs, id)
		} else {
			def.SourceIDs = append(def.SourceIDs, id)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating schedule sources: %w", err)
	}
	return nil
}
