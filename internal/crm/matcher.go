package crm

import (
	"context"
	"fmt"
	"sort"

	"crm-telephony/internal/observer"
	"crm-telephony/internal/phone"
)

// Candidates are narrowed by trailing digits before the exact comparison.
const suffixDigits = 7

type Matcher struct {
	contacts ContactRepository
	deals    DealRepository
	region   string
}

func NewMatcher(contacts ContactRepository, deals DealRepository, region string) *Matcher {
	return &Matcher{contacts: contacts, deals: deals, region: region}
}

// MatchByPhone resolves number to a contact and that contact's most recent
// open deal. No match returns an empty Match and a nil error.
func (m *Matcher) MatchByPhone(ctx context.Context, number string) (Match, error) {
	digits := phone.Digits(number)
	if len(digits) < suffixDigits {
		observer.Inc(observer.MatchesTotal, "none")
		return Match{}, nil
	}

	candidates, err := m.contacts.ListByPhoneSuffix(ctx, phone.Suffix(digits, suffixDigits))
	if err != nil {
		observer.Inc(observer.MatchesTotal, "error")
		return Match{}, fmt.Errorf("lookup contacts: %w", err)
	}

	var hit *Contact
	for i := range candidates {
		c := candidates[i]
		if !phone.Equal(number, c.Phone, m.region) {
			continue
		}
		if hit == nil || c.CreatedAt.After(hit.CreatedAt) {
			hit = &c
		}
	}
	if hit == nil {
		observer.Inc(observer.MatchesTotal, "none")
		return Match{}, nil
	}

	out := Match{Contact: hit}
	deals, err := m.deals.ListOpenByContact(ctx, hit.ID)
	if err != nil {
		observer.Inc(observer.MatchesTotal, "error")
		return out, fmt.Errorf("lookup deals: %w", err)
	}
	if d := mostRecentOpen(deals); d != nil {
		out.Deal = d
		observer.Inc(observer.MatchesTotal, "contact_deal")
	} else {
		observer.Inc(observer.MatchesTotal, "contact")
	}
	return out, nil
}

func mostRecentOpen(deals []Deal) *Deal {
	open := make([]Deal, 0, len(deals))
	for _, d := range deals {
		if !IsTerminalStage(d.StageName) {
			open = append(open, d)
		}
	}
	if len(open) == 0 {
		return nil
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].CreatedAt.After(open[j].CreatedAt) })
	return &open[0]
}
