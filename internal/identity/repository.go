package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crm-telephony/pkg/utils"
)

// NOTE: PostgresStore assumes:
//
//	CREATE TABLE telephony_identities (
//	  user_id             TEXT PRIMARY KEY,
//	  provider_account_id TEXT,
//	  access_token        TEXT NOT NULL,
//	  refresh_token       TEXT NOT NULL,
//	  token_expires_at    TIMESTAMPTZ NOT NULL,
//	  updated_at          TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db     *sql.DB
	cipher Cipher
	clock  func() time.Time
}

func NewPostgresStore(db *sql.DB, c Cipher) *PostgresStore {
	if c == nil {
		c = nopCipher{}
	}
	return &PostgresStore{db: db, cipher: c, clock: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (Identity, error) {
	const q = `
SELECT user_id, COALESCE(provider_account_id, ''), access_token, refresh_token, token_expires_at, updated_at
FROM telephony_identities
WHERE user_id = $1
`
	var out Identity
	err := utils.RetryDB(ctx, "identity.get", func() error {
		return s.db.QueryRowContext(ctx, q, userID).Scan(
			&out.UserID,
			&out.ProviderAccountID,
			&out.AccessToken,
			&out.RefreshToken,
			&out.TokenExpiresAt,
			&out.UpdatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, fmt.Errorf("get identity: %w", err)
	}
	if out.AccessToken, err = s.cipher.Open(out.AccessToken); err != nil {
		return Identity{}, err
	}
	if out.RefreshToken, err = s.cipher.Open(out.RefreshToken); err != nil {
		return Identity{}, err
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, in Identity) (Identity, error) {
	if in.UserID == "" {
		return Identity{}, errors.New("identity: user_id is required")
	}
	access, err := s.cipher.Seal(in.AccessToken)
	if err != nil {
		return Identity{}, err
	}
	refresh, err := s.cipher.Seal(in.RefreshToken)
	if err != nil {
		return Identity{}, err
	}
	in.UpdatedAt = s.clock().UTC()

	const q = `
INSERT INTO telephony_identities (user_id, provider_account_id, access_token, refresh_token, token_expires_at, updated_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE SET
  provider_account_id = COALESCE(EXCLUDED.provider_account_id, telephony_identities.provider_account_id),
  access_token = EXCLUDED.access_token,
  refresh_token = EXCLUDED.refresh_token,
  token_expires_at = EXCLUDED.token_expires_at,
  updated_at = EXCLUDED.updated_at
RETURNING COALESCE(provider_account_id, '')
`
	err = utils.RetryDB(ctx, "identity.upsert", func() error {
		return s.db.QueryRowContext(ctx, q,
			in.UserID,
			in.ProviderAccountID,
			access,
			refresh,
			in.TokenExpiresAt.UTC(),
			in.UpdatedAt,
		).Scan(&in.ProviderAccountID)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("upsert identity: %w", err)
	}
	return in, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	const q = `DELETE FROM telephony_identities WHERE user_id = $1`
	return utils.RetryDB(ctx, "identity.delete", func() error {
		_, err := s.db.ExecContext(ctx, q, userID)
		return err
	})
}

func (s *PostgresStore) ListExpiringBefore(ctx context.Context, t time.Time) ([]string, error) {
	const q = `
SELECT user_id
FROM telephony_identities
WHERE token_expires_at < $1 AND refresh_token <> ''
ORDER BY token_expires_at ASC
`
	var ids []string
	err := utils.RetryDB(ctx, "identity.list_expiring", func() error {
		ids = ids[:0]
		rows, err := s.db.QueryContext(ctx, q, t.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list expiring identities: %w", err)
	}
	return ids, nil
}
