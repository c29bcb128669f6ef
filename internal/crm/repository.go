package crm

import (
	"context"
	"database/sql"
	"fmt"

	"crm-telephony/pkg/utils"
)

// NOTE: these queries read tables owned by the CRM:
// contacts(id, first_name, last_name, email, phone, created_at),
// deals(id, contact_id, title, stage_id, created_at), deal_stages(id, name).

type PostgresContactRepo struct {
	db *sql.DB
}

func NewPostgresContactRepo(db *sql.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

func (r *PostgresContactRepo) ListByPhoneSuffix(ctx context.Context, suffix string) ([]Contact, error) {
	const q = `
SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, ''), phone, created_at
FROM contacts
WHERE phone IS NOT NULL
  AND regexp_replace(phone, '[^0-9]', '', 'g') LIKE '%' || $1
ORDER BY created_at DESC
LIMIT 50
`
	var out []Contact
	err := utils.RetryDB(ctx, "crm.contacts_by_phone", func() error {
		out = out[:0]
		rows, err := r.db.QueryContext(ctx, q, suffix)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c Contact
			if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list contacts by phone: %w", err)
	}
	return out, nil
}

type PostgresDealRepo struct {
	db *sql.DB
}

func NewPostgresDealRepo(db *sql.DB) *PostgresDealRepo {
	return &PostgresDealRepo{db: db}
}

func (r *PostgresDealRepo) ListOpenByContact(ctx context.Context, contactID string) ([]Deal, error) {
	const q = `
SELECT d.id, d.contact_id, COALESCE(d.title, ''), s.name, d.created_at
FROM deals d
JOIN deal_stages s ON s.id = d.stage_id
WHERE d.contact_id = $1
  AND lower(s.name) NOT IN ('won', 'lost')
ORDER BY d.created_at DESC
`
	var out []Deal
	err := utils.RetryDB(ctx, "crm.open_deals", func() error {
		out = out[:0]
		rows, err := r.db.QueryContext(ctx, q, contactID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d Deal
			if err := rows.Scan(&d.ID, &d.ContactID, &d.Title, &d.StageName, &d.CreatedAt); err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list open deals: %w", err)
	}
	return out, nil
}
