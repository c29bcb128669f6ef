package audit

import (
	"context"
	"database/sql"
	"fmt"

	"crm-telephony/pkg/utils"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO telephony_audit_events (id, user_id, type, provider_account_id, ip_address, message, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)
`
	err := utils.RetryDB(ctx, "audit.append", func() error {
		_, err := r.db.ExecContext(ctx, q, e.ID, e.UserID, string(e.Type), e.ProviderAccountID, e.IPAddress, e.Message, e.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
