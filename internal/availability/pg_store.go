package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const availabilityColumns = `id, doctor_id, schedule_type, weekday, effective_date,
	start_minute, end_minute, slot_duration, max_patients_per_slot,
	start_date, end_date, is_active, department, location, room,
	created_at, updated_at`

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanAvailability(row pgx.Row) (*DoctorAvailability, error) {
	var a DoctorAvailability
	var weekday int
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.ScheduleType,
		&weekday,
		&a.EffectiveDate,
		&a.StartMinute,
		&a.EndMinute,
		&a.SlotDuration,
		&a.MaxPatientsPerSlot,
		&a.StartDate,
		&a.EndDate,
		&a.IsActive,
		&a.Department,
		&a.Location,
		&a.Room,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Weekday = time.Weekday(weekday)
	return &a, nil
}

func (r *PgStore) Create(ctx context.Context, a *DoctorAvailability) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctor_availabilities
			(id, doctor_id, schedule_type, weekday, effective_date,
			 start_minute, end_minute, slot_duration, max_patients_per_slot,
			 start_date, end_date, is_active, department, location, room,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
	`, a.ID, a.DoctorID, a.ScheduleType, int(a.Weekday), a.EffectiveDate,
		a.StartMinute, a.EndMinute, a.SlotDuration, a.MaxPatientsPerSlot,
		a.StartDate, a.EndDate, a.IsActive, a.Department, a.Location, a.Room)
	if err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}
	return nil
}

func (r *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*DoctorAvailability, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+availabilityColumns+` FROM doctor_availabilities WHERE id = $1`, id)
	return scanAvailability(row)
}

func (r *PgStore) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*DoctorAvailability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM doctor_availabilities
		WHERE doctor_id = $1
		ORDER BY created_at
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*DoctorAvailability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
