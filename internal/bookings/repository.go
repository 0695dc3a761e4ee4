package bookings

import "context"

// Repository stores booking records. The admission controller, the reminder
// sweeps and the HTTP service all go through this interface.
type Repository interface {
	Count(ctx context.Context, filter Filter) (int, error)
	Find(ctx context.Context, filter Filter, sort Sort, offset, limit int) ([]Booking, error)
	FindByID(ctx context.Context, id string) (*Booking, error)
	Create(ctx context.Context, in NewBooking) (*Booking, error)
	UpdateFields(ctx context.Context, filter Filter, fields Fields) error
	Delete(ctx context.Context, id string) error
}
