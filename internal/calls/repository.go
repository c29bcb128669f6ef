package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crm-telephony/pkg/utils"
)

// Repository persists call records.
type Repository interface {
	// UpsertByProviderCallID inserts rec or merges it into the row with the
	// same ProviderCallID in one statement. inserted reports which happened.
	UpsertByProviderCallID(ctx context.Context, rec CallRecord) (out CallRecord, inserted bool, err error)
	Insert(ctx context.Context, rec CallRecord) (CallRecord, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error)
	ListByCreatedRange(ctx context.Context, from, to time.Time) ([]CallRecord, error)
}

// NOTE: PostgresRepo assumes:
//
//	CREATE TABLE call_records (
//	  id                 TEXT PRIMARY KEY,
//	  direction          TEXT NOT NULL,
//	  status             TEXT NOT NULL,
//	  from_number        TEXT NOT NULL DEFAULT '',
//	  to_number          TEXT NOT NULL DEFAULT '',
//	  duration_seconds   INT,
//	  recording_url      TEXT,
//	  provider_call_id   TEXT UNIQUE,
//	  matched_contact_id TEXT,
//	  matched_deal_id    TEXT,
//	  created_at         TIMESTAMPTZ NOT NULL,
//	  updated_at         TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const returningColumns = `
  id, direction, status, from_number, to_number,
  COALESCE(duration_seconds, 0), COALESCE(recording_url, ''), COALESCE(provider_call_id, ''),
  COALESCE(matched_contact_id, ''), COALESCE(matched_deal_id, ''),
  created_at, updated_at`

// The CASE guard mirrors CallStatus.Terminal and CallStatus.Provisional.
const upsertByProviderCallIDQuery = `
INSERT INTO call_records (
  id, direction, status, from_number, to_number, duration_seconds, recording_url,
  provider_call_id, matched_contact_id, matched_deal_id, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''), $11, $11)
ON CONFLICT (provider_call_id) DO UPDATE SET
  status = CASE
    WHEN call_records.status IN ('completed', 'missed', 'busy', 'rejected')
     AND EXCLUDED.status IN ('initiated', 'ringing', 'unknown', '')
    THEN call_records.status
    ELSE EXCLUDED.status
  END,
  duration_seconds = COALESCE(EXCLUDED.duration_seconds, call_records.duration_seconds),
  recording_url = COALESCE(EXCLUDED.recording_url, call_records.recording_url),
  matched_contact_id = COALESCE(EXCLUDED.matched_contact_id, call_records.matched_contact_id),
  matched_deal_id = COALESCE(EXCLUDED.matched_deal_id, call_records.matched_deal_id),
  from_number = COALESCE(NULLIF(call_records.from_number, ''), EXCLUDED.from_number),
  to_number = COALESCE(NULLIF(call_records.to_number, ''), EXCLUDED.to_number),
  updated_at = EXCLUDED.updated_at
RETURNING` + returningColumns + `, (xmax = 0) AS inserted
`

func (r *PostgresRepo) UpsertByProviderCallID(ctx context.Context, rec CallRecord) (CallRecord, bool, error) {
	if rec.ProviderCallID == "" {
		return CallRecord{}, false, ErrInvalidRecord
	}
	var (
		out      CallRecord
		inserted bool
	)
	err := utils.RetryDB(ctx, "calls.upsert", func() error {
		row := r.db.QueryRowContext(ctx, upsertByProviderCallIDQuery,
			rec.ID,
			string(rec.Direction),
			string(rec.Status),
			rec.FromNumber,
			rec.ToNumber,
			rec.DurationSeconds,
			rec.RecordingURL,
			rec.ProviderCallID,
			rec.MatchedContactID,
			rec.MatchedDealID,
			rec.CreatedAt,
		)
		return scanRecord(row, &out, &inserted)
	})
	if err != nil {
		return CallRecord{}, false, fmt.Errorf("upsert call record: %w", err)
	}
	return out, inserted, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, rec CallRecord) (CallRecord, error) {
	const q = `
INSERT INTO call_records (
  id, direction, status, from_number, to_number, duration_seconds, recording_url,
  provider_call_id, matched_contact_id, matched_deal_id, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11, $11)
`
	err := utils.RetryDB(ctx, "calls.insert", func() error {
		_, err := r.db.ExecContext(ctx, q,
			rec.ID,
			string(rec.Direction),
			string(rec.Status),
			rec.FromNumber,
			rec.ToNumber,
			rec.DurationSeconds,
			rec.RecordingURL,
			rec.ProviderCallID,
			rec.MatchedContactID,
			rec.MatchedDealID,
			rec.CreatedAt,
		)
		return err
	})
	if err != nil {
		return CallRecord{}, fmt.Errorf("insert call record: %w", err)
	}
	rec.UpdatedAt = rec.CreatedAt
	return rec, nil
}

func (r *PostgresRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error) {
	q := `SELECT` + returningColumns + ` FROM call_records WHERE provider_call_id = $1`
	var out CallRecord
	err := utils.RetryDB(ctx, "calls.get", func() error {
		return scanRecord(r.db.QueryRowContext(ctx, q, providerCallID), &out, nil)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, fmt.Errorf("get call record: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) ListByCreatedRange(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	q := `SELECT` + returningColumns + `
FROM call_records
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at ASC
`
	var out []CallRecord
	err := utils.RetryDB(ctx, "calls.list", func() error {
		out = out[:0]
		rows, err := r.db.QueryContext(ctx, q, from.UTC(), to.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec CallRecord
			if err := scanRecord(rows, &rec, nil); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, out *CallRecord, inserted *bool) error {
	var direction, status string
	dest := []any{
		&out.ID,
		&direction,
		&status,
		&out.FromNumber,
		&out.ToNumber,
		&out.DurationSeconds,
		&out.RecordingURL,
		&out.ProviderCallID,
		&out.MatchedContactID,
		&out.MatchedDealID,
		&out.CreatedAt,
		&out.UpdatedAt,
	}
	if inserted != nil {
		dest = append(dest, inserted)
	}
	if err := s.Scan(dest...); err != nil {
		return err
	}
	out.Direction = Direction(direction)
	out.Status = CallStatus(status)
	return nil
}
