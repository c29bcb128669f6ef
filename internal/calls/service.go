package calls

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"crm-telephony/internal/observer"
)

// Reconciler writes call records, deduplicating on ProviderCallID.
type Reconciler struct {
	repo  Repository
	clock func() time.Time
}

func NewReconciler(repo Repository) *Reconciler {
	return &Reconciler{repo: repo, clock: time.Now}
}

// Upsert inserts rec, or merges it into the existing record with the same
// ProviderCallID. Records without ProviderCallID are always inserted.
func (r *Reconciler) Upsert(ctx context.Context, rec CallRecord) (CallRecord, error) {
	if r.repo == nil {
		return CallRecord{}, errors.New("calls: repository not configured")
	}
	if !rec.Direction.Valid() || rec.DurationSeconds < 0 {
		return CallRecord{}, ErrInvalidRecord
	}
	if rec.Status == "" {
		rec.Status = CallStatusUnknown
	}

	now := r.clock().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if rec.ProviderCallID == "" {
		out, err := r.repo.Insert(ctx, rec)
		if err != nil {
			return CallRecord{}, err
		}
		observer.Inc(observer.CallRecordsReconciledTotal, "insert")
		return out, nil
	}

	out, inserted, err := r.repo.UpsertByProviderCallID(ctx, rec)
	if err != nil {
		return CallRecord{}, err
	}
	if inserted {
		observer.Inc(observer.CallRecordsReconciledTotal, "insert")
	} else {
		observer.Inc(observer.CallRecordsReconciledTotal, "update")
	}
	return out, nil
}

// ListByCreatedRange returns records created in [from, to).
func (r *Reconciler) ListByCreatedRange(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	return r.repo.ListByCreatedRange(ctx, from, to)
}
