package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const slotColumns = `id, doctor_id, slot_date, start_time, end_time, status,
	max_patients, current_patients, is_active, availability_id, source_type,
	department, location, room, created_at, updated_at`

// PgStore is the Postgres Store. Reserve and Release run inside a transaction
// holding a row lock on the slot, so concurrent mutations of the same slot
// serialize on the database.
type PgStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPgStore(pool *pgxpool.Pool, log zerolog.Logger) *PgStore {
	return &PgStore{
		pool: pool,
		log:  log.With().Str("component", "slot_pg_store").Logger(),
	}
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.MaxPatients,
		&s.CurrentPatients,
		&s.IsActive,
		&s.AvailabilityID,
		&s.SourceType,
		&s.Department,
		&s.Location,
		&s.Room,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgStore) Create(ctx context.Context, s *TimeSlot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Date.IsZero() {
		s.Date = DateOf(s.StartTime)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO time_slots
			(id, doctor_id, slot_date, start_time, end_time, status,
			 max_patients, current_patients, is_active, availability_id,
			 source_type, department, location, room, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
	`, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime, s.Status,
		s.MaxPatients, s.CurrentPatients, s.IsActive, s.AvailabilityID,
		s.SourceType, s.Department, s.Location, s.Room)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r *PgStore) CreateBatch(ctx context.Context, slots []*TimeSlot) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range slots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.Date.IsZero() {
			s.Date = DateOf(s.StartTime)
		}
		batch.Queue(`
			INSERT INTO time_slots
				(id, doctor_id, slot_date, start_time, end_time, status,
				 max_patients, current_patients, is_active, availability_id,
				 source_type, department, location, room, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		`, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime, s.Status,
			s.MaxPatients, s.CurrentPatients, s.IsActive, s.AvailabilityID,
			s.SourceType, s.Department, s.Location, s.Room)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("send slot batch: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (r *PgStore) Reserve(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSlot(row)
	if err != nil {
		return nil, err
	}

	if !s.Bookable() {
		if !s.Status.Sticky() && s.CurrentPatients >= s.MaxPatients {
			// repair: a full slot must read as booked
			if _, uerr := tx.Exec(ctx, `
				UPDATE time_slots SET status = $2, updated_at = now() WHERE id = $1
			`, id, StatusBooked); uerr != nil {
				return nil, fmt.Errorf("repair slot status: %w", uerr)
			}
			if cerr := tx.Commit(ctx); cerr != nil {
				return nil, fmt.Errorf("commit reserve repair: %w", cerr)
			}
			return nil, ErrCapacityExceeded
		}
		return nil, ErrUnavailable
	}

	s.CurrentPatients++
	s.RecomputeStatus()

	if _, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET current_patients = $2, status = $3, updated_at = now()
		WHERE id = $1
	`, id, s.CurrentPatients, s.Status); err != nil {
		return nil, fmt.Errorf("update slot occupancy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return s, nil
}

func (r *PgStore) Release(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin release: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSlot(row)
	if err != nil {
		return nil, err
	}

	if s.CurrentPatients > 0 {
		s.CurrentPatients--
	} else {
		r.log.Warn().Str("slot_id", id.String()).Msg("release on empty slot, occupancy clamped at zero")
	}
	s.RecomputeStatus()

	if _, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET current_patients = $2, status = $3, updated_at = now()
		WHERE id = $1
	`, id, s.CurrentPatients, s.Status); err != nil {
		return nil, fmt.Errorf("update slot occupancy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release: %w", err)
	}
	return s, nil
}

func (r *PgStore) Block(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET status = $2, is_active = false, updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns+`
	`, id, StatusBlocked)
	return scanSlot(row)
}

func (r *PgStore) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1 AND slot_date = $2
		ORDER BY start_time
	`, doctorID, DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (r *PgStore) ListAvailable(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1
		  AND status = 'available'
		  AND is_active
		  AND current_patients < max_patients
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (r *PgStore) FindByWindow(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1 AND start_time = $2 AND end_time = $3
	`, doctorID, start, end)
	return scanSlot(row)
}

func (r *PgStore) FindAvailableAt(ctx context.Context, doctorID uuid.UUID, start time.Time) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1
		  AND start_time = $2
		  AND status = 'available'
		  AND is_active
		  AND current_patients < max_patients
		LIMIT 1
	`, doctorID, start)
	return scanSlot(row)
}

func collectSlots(rows pgx.Rows) ([]*TimeSlot, error) {
	var result []*TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
