package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgx used by the directory.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory reads accounts from the accounts table.
type PostgresDirectory struct {
	db Querier
}

func NewPostgresDirectory(db Querier) *PostgresDirectory {
	if db == nil {
		panic("accounts: db required")
	}
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Get(ctx context.Context, id string) (*Account, error) {
	var (
		a    Account
		role string
	)
	err := d.db.QueryRow(ctx,
		`SELECT id, name, email, phone, lang, role FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.Lang, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accounts: get: %w", err)
	}
	a.Role = Role(role)
	return &a, nil
}

var _ Directory = (*PostgresDirectory)(nil)
