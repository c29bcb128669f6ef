package crm

import (
	"context"
	"sort"
	"strings"
	"sync"

	"crm-telephony/internal/phone"
)

// MemoryRepo serves contacts and deals from memory. Useful for tests and local runs.
type MemoryRepo struct {
	mu       sync.Mutex
	contacts []Contact
	deals    []Deal
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) AddContact(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append(r.contacts, c)
}

func (r *MemoryRepo) AddDeal(d Deal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deals = append(r.deals, d)
}

func (r *MemoryRepo) ListByPhoneSuffix(ctx context.Context, suffix string) ([]Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Contact
	for _, c := range r.contacts {
		if suffix != "" && strings.HasSuffix(phone.Digits(c.Phone), suffix) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ListOpenByContact(ctx context.Context, contactID string) ([]Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Deal
	for _, d := range r.deals {
		if d.ContactID == contactID && !IsTerminalStage(d.StageName) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
