package crm

import (
	"context"
	"strings"
	"time"
)

// Contact and Deal are read models of CRM entities owned elsewhere; this
// service never writes them.
type Contact struct {
	ID        string    `json:"id" db:"id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Deal struct {
	ID        string    `json:"id" db:"id"`
	ContactID string    `json:"contact_id" db:"contact_id"`
	Title     string    `json:"title" db:"title"`
	StageName string    `json:"stage_name" db:"stage_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Terminal stages close a deal for call matching.
var terminalStages = []string{"won", "lost"}

func IsTerminalStage(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, s := range terminalStages {
		if n == s {
			return true
		}
	}
	return false
}

// Match is the result of a phone lookup. Both fields are nil when nothing matched.
type Match struct {
	Contact *Contact `json:"contact,omitempty"`
	Deal    *Deal    `json:"deal,omitempty"`
}

func (m Match) ContactID() string {
	if m.Contact == nil {
		return ""
	}
	return m.Contact.ID
}

func (m Match) DealID() string {
	if m.Deal == nil {
		return ""
	}
	return m.Deal.ID
}

type ContactRepository interface {
	// ListByPhoneSuffix returns contacts whose stored phone digits end with
	// suffix, newest first.
	ListByPhoneSuffix(ctx context.Context, suffix string) ([]Contact, error)
}

type DealRepository interface {
	// ListOpenByContact returns the contact's deals outside terminal stages,
	// newest first.
	ListOpenByContact(ctx context.Context, contactID string) ([]Deal, error)
}
