package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Delivery is one row of the reminder delivery log.
type Delivery struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"booking_id"`
	Tier        string    `json:"tier"`
	Channel     Channel   `json:"channel"`
	RecipientID string    `json:"recipient_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Recorder persists successful deliveries.
type Recorder interface {
	Record(ctx context.Context, d Delivery) error
}

// AuditLog stores deliveries in reminder_deliveries. The dedup markers in
// Redis decide whether to send; this table only answers "what was sent".
type AuditLog struct {
	db *sql.DB
}

func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db}
}

// Record inserts d, assigning an id and timestamp when missing.
func (a *AuditLog) Record(ctx context.Context, d Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO reminder_deliveries (id, booking_id, tier, channel, recipient_id, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.BookingID, d.Tier, string(d.Channel), d.RecipientID, d.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("notify: record delivery: %w", err)
	}
	return nil
}

// History lists deliveries for the given bookings, oldest first.
func (a *AuditLog) History(ctx context.Context, bookingIDs []string) ([]Delivery, error) {
	if len(bookingIDs) == 0 {
		return nil, nil
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, booking_id, tier, channel, recipient_id, delivered_at
		FROM reminder_deliveries
		WHERE booking_id = ANY($1)
		ORDER BY delivered_at ASC`,
		pq.Array(bookingIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: query deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d       Delivery
			channel string
		)
		if err := rows.Scan(&d.ID, &d.BookingID, &d.Tier, &channel, &d.RecipientID, &d.DeliveredAt); err != nil {
			return nil, fmt.Errorf("notify: scan delivery: %w", err)
		}
		d.Channel = Channel(channel)
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ Recorder = (*AuditLog)(nil)
