package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/availability"
	"github.com/clinicore/clinic-scheduling/internal/db"
	"github.com/clinicore/clinic-scheduling/internal/slot"
)

const (
	doctorCount  = 50
	patientCount = 5000
	expandDays   = 14
)

var departments = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, dsn)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	ctx := context.Background()

	doctorIDs, err := seedDoctors(ctx, pool, doctorCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	log.Info().Int("count", len(doctorIDs)).Msg("doctors seeded")

	if err := seedPatients(ctx, pool, patientCount); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	log.Info().Int("count", patientCount).Msg("patients seeded")

	created, err := seedSchedules(ctx, pool, doctorIDs, log)
	if err != nil {
		log.Fatal().Err(err).Msg("seed schedules")
	}
	log.Info().Int("slots", created).Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		dept := departments[gofakeit.Number(0, len(departments)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, department, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, "Dr. "+gofakeit.Name(), dept)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO doctor_specialties (doctor_id, specialty)
			VALUES ($1, $2)
		`, id, dept)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// seedSchedules gives every doctor a weekday morning schedule and expands it
// into concrete slots for the next two weeks.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, log zerolog.Logger) (int, error) {
	slots := slot.NewPgStore(pool, log)
	availStore := availability.NewPgStore(pool)
	expander := availability.NewExpander(slots, noopCanceller{}, log)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	horizon := today.AddDate(0, 0, expandDays)

	created := 0
	for _, doctorID := range doctorIDs {
		for wd := time.Monday; wd <= time.Friday; wd++ {
			a := &availability.DoctorAvailability{
				ID:                 uuid.New(),
				DoctorID:           doctorID,
				ScheduleType:       availability.TypeRegular,
				Weekday:            wd,
				StartMinute:        9 * 60,
				EndMinute:          12 * 60,
				SlotDuration:       30,
				MaxPatientsPerSlot: 1,
				IsActive:           true,
			}
			if err := availStore.Create(ctx, a); err != nil {
				return created, err
			}
			made, err := expander.Expand(ctx, a, today, horizon)
			if err != nil {
				return created, err
			}
			created += len(made)
		}
	}
	return created, nil
}

// noopCanceller satisfies the expander's cancellation hook; a fresh database
// has no appointments to cancel.
type noopCanceller struct{}

func (noopCanceller) CancelBySlot(context.Context, uuid.UUID, string) (int, error) {
	return 0, nil
}
