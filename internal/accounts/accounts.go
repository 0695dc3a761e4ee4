// Package accounts is a read-only view of the people on either side of a
// booking. Account management itself lives elsewhere.
package accounts

import (
	"context"
	"errors"
)

// Role separates booking subjects from the providers they book.
type Role string

const (
	RoleUser     Role = "user"
	RoleProvider Role = "provider"
)

// ErrNotFound is returned when no account has the requested id.
var ErrNotFound = errors.New("accounts: not found")

// Account carries the fields needed to admit bookings and address reminders.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Lang  string `json:"lang"`
	Role  Role   `json:"role"`
}

// IsProvider reports whether the account may receive bookings.
func (a Account) IsProvider() bool {
	return a.Role == RoleProvider
}

// Directory resolves accounts by id.
type Directory interface {
	Get(ctx context.Context, id string) (*Account, error)
}
