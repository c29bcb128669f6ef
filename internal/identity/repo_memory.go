package identity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store useful for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]Identity
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Identity{}, clock: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.rows[userID]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return in, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, in Identity) (Identity, error) {
	if in.UserID == "" {
		return Identity{}, errors.New("identity: user_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.rows[in.UserID]; ok && in.ProviderAccountID == "" {
		in.ProviderAccountID = prev.ProviderAccountID
	}
	in.UpdatedAt = s.clock().UTC()
	s.rows[in.UserID] = in
	return in, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, userID)
	return nil
}

func (s *MemoryStore) ListExpiringBefore(ctx context.Context, t time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type row struct {
		id  string
		exp time.Time
	}
	var rows []row
	for id, in := range s.rows {
		if in.RefreshToken != "" && in.TokenExpiresAt.Before(t) {
			rows = append(rows, row{id: id, exp: in.TokenExpiresAt})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].exp.Before(rows[j].exp) })
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.id)
	}
	return out, nil
}
