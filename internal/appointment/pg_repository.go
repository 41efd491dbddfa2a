package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `id, patient_id, slot_id, status, appointment_type, priority,
	reason_category, is_recurring, recurrence_pattern, recurrence_end_date,
	parent_appointment_id, is_follow_up, follow_up_to,
	medical_record_id, billing_id, prescription_id,
	notes, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var pattern *string
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.SlotID,
		&a.Status,
		&a.Type,
		&a.Priority,
		&a.ReasonCategory,
		&a.IsRecurring,
		&pattern,
		&a.RecurrenceEndDate,
		&a.ParentID,
		&a.IsFollowUp,
		&a.FollowUpTo,
		&a.MedicalRecordID,
		&a.BillingID,
		&a.PrescriptionID,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if pattern != nil {
		p := RecurrencePattern(*pattern)
		a.RecurrencePattern = &p
	}
	return &a, nil
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	var pattern *string
	if a.RecurrencePattern != nil {
		p := string(*a.RecurrencePattern)
		pattern = &p
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, slot_id, status, appointment_type, priority,
			 reason_category, is_recurring, recurrence_pattern, recurrence_end_date,
			 parent_appointment_id, is_follow_up, follow_up_to,
			 medical_record_id, billing_id, prescription_id,
			 notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.SlotID, a.Status, a.Type, a.Priority,
		a.ReasonCategory, a.IsRecurring, pattern, a.RecurrenceEndDate,
		a.ParentID, a.IsFollowUp, a.FollowUpTo,
		a.MedicalRecordID, a.BillingID, a.PrescriptionID, a.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, note string) (*Appointment, error) {
	stamped := fmt.Sprintf("\n[%s] %s -> %s", time.Now().UTC().Format(time.RFC3339), from, to)
	if note != "" {
		stamped += ": " + note
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = notes || $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, stamped)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// distinguish a missing row from a lost CAS race
			if _, gerr := r.GetByID(ctx, id); gerr == nil {
				return nil, ErrStatusConflict
			}
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) ListBySlot(ctx context.Context, slotID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_id = $1
		ORDER BY created_at
	`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListActiveDescendants(ctx context.Context, parentID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE (parent_appointment_id = $1 OR follow_up_to = $1)
		  AND status IN ('pending', 'confirmed')
		ORDER BY created_at
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixedAppointmentColumns("a")+`
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.status = 'confirmed'
		  AND s.start_time >= $1
		  AND s.start_time < $2
		ORDER BY s.start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var result []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func prefixedAppointmentColumns(alias string) string {
	return alias + ".id, " + alias + ".patient_id, " + alias + ".slot_id, " + alias + ".status, " +
		alias + ".appointment_type, " + alias + ".priority, " + alias + ".reason_category, " +
		alias + ".is_recurring, " + alias + ".recurrence_pattern, " + alias + ".recurrence_end_date, " +
		alias + ".parent_appointment_id, " + alias + ".is_follow_up, " + alias + ".follow_up_to, " +
		alias + ".medical_record_id, " + alias + ".billing_id, " + alias + ".prescription_id, " +
		alias + ".notes, " + alias + ".created_at, " + alias + ".updated_at"
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
