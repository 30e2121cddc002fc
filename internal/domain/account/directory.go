package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNoManager       = errors.New("account has no manager")
	ErrNoEmail         = errors.New("account has no email address")
)

// Candidate is an account returned by the expiring-accounts query, before any
// attribute resolution.
type Candidate struct {
	DN        string
	Username  string
	ExpiresAt time.Time
}

// Entry holds the attributes resolved for a single directory identity.
type Entry struct {
	DN        string
	Username  string
	Email     string
	ManagerDN string // Empty when the account has no manager
}

// Directory defines the lookups the job needs from the directory service.
type Directory interface {
	// ListExpiring returns user accounts whose expiration falls within the next days days.
	ListExpiring(ctx context.Context, days int) ([]Candidate, error)
	// GetAccount resolves the email and manager attributes of one identity.
	GetAccount(ctx context.Context, dn string) (*Entry, error)
}
