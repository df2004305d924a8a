package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// uniqueViolation is the Postgres SQLSTATE for a UNIQUE constraint failure.
const uniqueViolation = "23505"

// Postgres is a Ledger backed by the briefings table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a Postgres ledger using db.
// The schema must already be migrated (see package db).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Append inserts b. The ordering check and the insert run in one transaction
// holding a per-hospital advisory lock, so concurrent appends from several
// server replicas cannot interleave.
func (p *Postgres) Append(ctx context.Context, b *types.Briefing) error {
	if err := checkAppend(b); err != nil {
		return err
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("ledger: marshal briefing: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Wrap(fault.KindStorage, err, "ledger: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.HospitalID); err != nil {
		return fault.Wrap(fault.KindStorage, err, "ledger: lock %q", b.HospitalID)
	}

	var last sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT max(computed_at) FROM briefings WHERE hospital_id = $1`, b.HospitalID).Scan(&last)
	if err != nil {
		return fault.Wrap(fault.KindStorage, err, "ledger: read last entry for %q", b.HospitalID)
	}
	if last.Valid && !b.ComputedAt.After(last.Time) {
		return fault.New(fault.KindConflict,
			"briefing for %q computed at %s is not after the last entry (%s)",
			b.HospitalID, b.ComputedAt.Format(time.RFC3339Nano), last.Time.Format(time.RFC3339Nano))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO briefings (id, hospital_id, date, computed_at, risk_level, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.HospitalID, b.Date, b.ComputedAt, string(b.RiskLevel), payload)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fault.Wrap(fault.KindConflict, err, "ledger: duplicate entry for %q", b.HospitalID)
		}
		return fault.Wrap(fault.KindStorage, err, "ledger: insert")
	}
	if err := tx.Commit(); err != nil {
		return fault.Wrap(fault.KindStorage, err, "ledger: commit")
	}
	return nil
}

// Query returns the newest limit entries strictly before before.
func (p *Postgres) Query(ctx context.Context, hospitalID string, limit int, before time.Time) ([]*types.Briefing, error) {
	if err := checkQuery(limit); err != nil {
		return nil, err
	}

	var (
		rows *sql.Rows
		err  error
	)
	if before.IsZero() {
		rows, err = p.db.QueryContext(ctx,
			`SELECT payload FROM briefings WHERE hospital_id = $1
			 ORDER BY computed_at DESC LIMIT $2`, hospitalID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT payload FROM briefings WHERE hospital_id = $1 AND computed_at < $2
			 ORDER BY computed_at DESC LIMIT $3`, hospitalID, before, limit)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "ledger: query %q", hospitalID)
	}
	defer rows.Close()

	out := make([]*types.Briefing, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fault.Wrap(fault.KindStorage, err, "ledger: scan")
		}
		var b types.Briefing
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, fault.Wrap(fault.KindStorage, err, "ledger: decode entry")
		}
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "ledger: query %q", hospitalID)
	}
	return out, nil
}
