package hospital

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// Postgres is a Repository backed by the hospital_states table.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres returns a Postgres repository using db.
// The schema must already be migrated (see package db).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

const selectState = `
SELECT hospital_id, name, location, icu_total, icu_occupied, daily_patients,
       staff_on_duty, oxygen_status, medicine_status, updated_at, updated_by
FROM hospital_states WHERE hospital_id = $1`

// Get loads the state for hospitalID.
func (p *Postgres) Get(ctx context.Context, hospitalID string) (*types.HospitalState, error) {
	var s types.HospitalState
	err := p.db.QueryRowContext(ctx, selectState, hospitalID).Scan(
		&s.HospitalID, &s.Name, &s.Location,
		&s.ICUTotal, &s.ICUOccupied, &s.DailyPatients, &s.StaffOnDuty,
		&s.OxygenStatus, &s.MedicineStatus,
		&s.UpdatedAt, &s.UpdatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.MissingState(hospitalID)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "load hospital %q", hospitalID)
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

const upsertState = `
INSERT INTO hospital_states (hospital_id, name, location, icu_total, icu_occupied,
    daily_patients, staff_on_duty, oxygen_status, medicine_status, updated_at, updated_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (hospital_id) DO UPDATE SET
    name = EXCLUDED.name,
    location = EXCLUDED.location,
    icu_total = EXCLUDED.icu_total,
    icu_occupied = EXCLUDED.icu_occupied,
    daily_patients = EXCLUDED.daily_patients,
    staff_on_duty = EXCLUDED.staff_on_duty,
    oxygen_status = EXCLUDED.oxygen_status,
    medicine_status = EXCLUDED.medicine_status,
    updated_at = EXCLUDED.updated_at,
    updated_by = EXCLUDED.updated_by`

// Put validates and upserts s.
func (p *Postgres) Put(ctx context.Context, s *types.HospitalState) (*types.HospitalState, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	cp := *s
	cp.UpdatedAt = p.now().UTC().Truncate(time.Microsecond)
	_, err := p.db.ExecContext(ctx, upsertState,
		cp.HospitalID, cp.Name, cp.Location,
		cp.ICUTotal, cp.ICUOccupied, cp.DailyPatients, cp.StaffOnDuty,
		string(cp.OxygenStatus), string(cp.MedicineStatus),
		cp.UpdatedAt, cp.UpdatedBy,
	)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "store hospital %q", cp.HospitalID)
	}
	return &cp, nil
}

// List returns every hospital ID in ascending order.
func (p *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT hospital_id FROM hospital_states ORDER BY hospital_id`)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "list hospitals")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fault.Wrap(fault.KindStorage, err, "scan hospital id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "list hospitals")
	}
	return ids, nil
}
