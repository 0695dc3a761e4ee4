package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `SELECT id::text, subject_id, provider_id, scheduled_at, active, created_at, updated_at FROM appointments`

// PostgresRepository persists bookings in the appointments table.
type PostgresRepository struct {
	db  DB
	now func() time.Time
}

// NewPostgresRepository creates a repository backed by a pgx pool or conn.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("bookings: db required")
	}
	return &PostgresRepository{db: db, now: time.Now}
}

// Count returns the number of bookings matching filter.
func (r *PostgresRepository) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := buildWhere(filter, 1)
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("bookings: count: %w", err)
	}
	return n, nil
}

// Find returns one page of bookings matching filter.
func (r *PostgresRepository) Find(ctx context.Context, filter Filter, sort Sort, offset, limit int) ([]Booking, error) {
	if limit <= 0 {
		limit = 30
	}
	if offset < 0 {
		offset = 0
	}
	where, args := buildWhere(filter, 1)
	direction := "ASC"
	if sort.Desc {
		direction = "DESC"
	}
	n := len(args)
	query := fmt.Sprintf("%s%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		selectColumns, where, sort.column(), direction, direction, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bookings: find: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// FindByID loads a single booking.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := r.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	var b Booking
	if err := row.Scan(&b.ID, &b.SubjectID, &b.ProviderID, &b.ScheduledAt, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: find by id: %w", err)
	}
	return &b, nil
}

// Create inserts an inactive booking.
func (r *PostgresRepository) Create(ctx context.Context, in NewBooking) (*Booking, error) {
	now := r.now().UTC()
	b := &Booking{
		ID:          uuid.NewString(),
		SubjectID:   in.SubjectID,
		ProviderID:  in.ProviderID,
		ScheduledAt: in.ScheduledAt.UTC(),
		Active:      false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, subject_id, provider_id, scheduled_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.SubjectID, b.ProviderID, b.ScheduledAt, b.Active, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("bookings: create: %w", err)
	}
	return b, nil
}

// UpdateFields applies fields to the booking selected by filter.
func (r *PostgresRepository) UpdateFields(ctx context.Context, filter Filter, fields Fields) error {
	if filter.ID == "" {
		return ErrUnscopedUpdate
	}
	if _, err := uuid.Parse(filter.ID); err != nil {
		return ErrNotFound
	}
	sets := make([]string, 0, 3)
	args := make([]any, 0, 8)
	if fields.ScheduledAt != nil {
		args = append(args, fields.ScheduledAt.UTC())
		sets = append(sets, fmt.Sprintf("scheduled_at = $%d", len(args)))
	}
	if fields.Active != nil {
		args = append(args, *fields.Active)
		sets = append(sets, fmt.Sprintf("active = $%d", len(args)))
	}
	args = append(args, r.now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	where, whereArgs := buildWhere(filter, len(args)+1)
	args = append(args, whereArgs...)

	tag, err := r.db.Exec(ctx, `UPDATE appointments SET `+strings.Join(sets, ", ")+where, args...)
	if err != nil {
		return fmt.Errorf("bookings: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a booking.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bookings: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildWhere renders filter as a WHERE clause whose placeholders start at $first.
func buildWhere(f Filter, first int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, first+len(args)-1))
	}
	if f.ID != "" {
		add("id = $%d", f.ID)
	}
	if f.SubjectID != "" {
		add("subject_id = $%d", f.SubjectID)
	}
	if f.ProviderID != "" {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.Active != nil {
		add("active = $%d", *f.Active)
	}
	if f.MinDate != nil {
		add("scheduled_at >= $%d", f.MinDate.UTC())
	}
	if f.MaxDate != nil {
		add("scheduled_at <= $%d", f.MaxDate.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	var result []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.SubjectID, &b.ProviderID, &b.ScheduledAt, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

var _ Repository = (*PostgresRepository)(nil)
