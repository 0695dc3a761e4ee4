package reminders

import (
	"context"

	"github.com/wolfman30/booking-reminders/pkg/logging"
)

// Invalidator forgets that reminders were sent for a booking so a moved
// appointment is announced again for its new date.
type Invalidator struct {
	cache  DedupCache
	logger *logging.Logger
}

func NewInvalidator(cache DedupCache, logger *logging.Logger) *Invalidator {
	if cache == nil {
		panic("reminders: cache required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Invalidator{cache: cache, logger: logger}
}

// OnDateChanged deletes every tier marker for bookingID.
func (i *Invalidator) OnDateChanged(ctx context.Context, bookingID string) error {
	if err := i.cache.Delete(ctx, Keys(bookingID)...); err != nil {
		return err
	}
	i.logger.Debug("reminder markers cleared", "booking_id", bookingID)
	return nil
}

// Status reports which tiers currently hold a marker for bookingID. An
// in-flight claim counts as a marker.
func Status(ctx context.Context, cache DedupCache, bookingID string) (map[Tier]bool, error) {
	out := make(map[Tier]bool, len(Tiers))
	for _, t := range Tiers {
		ok, err := cache.Exists(ctx, Key(t, bookingID))
		if err != nil {
			return nil, err
		}
		out[t] = ok
	}
	return out, nil
}
