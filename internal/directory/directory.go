package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// DoctorInfo is the read-only directory view of a doctor used to enrich
// listing responses. The scheduling core itself never depends on it.
type DoctorInfo struct {
	ID         uuid.UUID
	Name       string
	Department *string
}

// Lookup is the external doctor/department directory.
type Lookup interface {
	DoctorInfo(ctx context.Context, doctorID uuid.UUID) (*DoctorInfo, error)
	SpecialtiesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]string, error)
}

// PgLookup reads the doctors table directly. In a full deployment this would
// be a call into the directory service.
type PgLookup struct {
	pool *pgxpool.Pool
}

func NewPgLookup(pool *pgxpool.Pool) *PgLookup {
	return &PgLookup{pool: pool}
}

func (l *PgLookup) DoctorInfo(ctx context.Context, doctorID uuid.UUID) (*DoctorInfo, error) {
	var info DoctorInfo
	err := l.pool.QueryRow(ctx, `
		SELECT id, name, department
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&info.ID, &info.Name, &info.Department)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &info, nil
}

func (l *PgLookup) SpecialtiesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]string, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT specialty
		FROM doctor_specialties
		WHERE doctor_id = $1
		ORDER BY specialty
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specialties []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		specialties = append(specialties, s)
	}
	return specialties, rows.Err()
}

// StaticLookup serves a fixed set of doctors, used by tests and dev mode.
type StaticLookup struct {
	Doctors map[uuid.UUID]DoctorInfo
}

func (l StaticLookup) DoctorInfo(_ context.Context, doctorID uuid.UUID) (*DoctorInfo, error) {
	info, ok := l.Doctors[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &info, nil
}

func (l StaticLookup) SpecialtiesByDoctor(_ context.Context, _ uuid.UUID) ([]string, error) {
	return nil, nil
}
