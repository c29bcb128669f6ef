package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests. It applies the same merge
// rules as the Postgres upsert.
type MemoryRepo struct {
	mu      sync.Mutex
	records []CallRecord
	byCall  map[string]int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byCall: map[string]int{}}
}

func (r *MemoryRepo) UpsertByProviderCallID(ctx context.Context, rec CallRecord) (CallRecord, bool, error) {
	if rec.ProviderCallID == "" {
		return CallRecord{}, false, ErrInvalidRecord
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.byCall[rec.ProviderCallID]; ok {
		r.records[i] = Merge(r.records[i], rec)
		return r.records[i], false, nil
	}
	rec.UpdatedAt = rec.CreatedAt
	r.byCall[rec.ProviderCallID] = len(r.records)
	r.records = append(r.records, rec)
	return rec, true, nil
}

func (r *MemoryRepo) Insert(ctx context.Context, rec CallRecord) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.UpdatedAt = rec.CreatedAt
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *MemoryRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byCall[providerCallID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return r.records[i], nil
}

func (r *MemoryRepo) ListByCreatedRange(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallRecord
	for _, rec := range r.records {
		if !rec.CreatedAt.Before(from) && rec.CreatedAt.Before(to) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Records returns a copy of every stored record.
func (r *MemoryRepo) Records() []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, len(r.records))
	copy(out, r.records)
	return out
}
