package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps bookings in process. It backs development mode when
// DATABASE_URL is unset and doubles as the repository fake in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Booking
	now   func() time.Time
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Booking), now: time.Now}
}

// WithClock overrides the timestamp source used for created/updated fields.
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *MemoryRepository) Count(ctx context.Context, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.items {
		if filter.Matches(b) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Find(ctx context.Context, filter Filter, s Sort, offset, limit int) ([]Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matched := make([]Booking, 0, len(r.items))
	for _, b := range r.items {
		if filter.Matches(b) {
			matched = append(matched, b)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := sortKey(matched[i], s.Field), sortKey(matched[j], s.Field)
		if a.Equal(b) {
			if s.Desc {
				return matched[i].ID > matched[j].ID
			}
			return matched[i].ID < matched[j].ID
		}
		if s.Desc {
			return a.After(b)
		}
		return a.Before(b)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) Create(ctx context.Context, in NewBooking) (*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := r.now().UTC()
	b := Booking{
		ID:          uuid.NewString(),
		SubjectID:   in.SubjectID,
		ProviderID:  in.ProviderID,
		ScheduledAt: in.ScheduledAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.mu.Lock()
	r.items[b.ID] = b
	r.mu.Unlock()
	return &b, nil
}

func (r *MemoryRepository) UpdateFields(ctx context.Context, filter Filter, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filter.ID == "" {
		return ErrUnscopedUpdate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[filter.ID]
	if !ok || !filter.Matches(b) {
		return ErrNotFound
	}
	if fields.ScheduledAt != nil {
		b.ScheduledAt = fields.ScheduledAt.UTC()
	}
	if fields.Active != nil {
		b.Active = *fields.Active
	}
	b.UpdatedAt = r.now().UTC()
	r.items[b.ID] = b
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func sortKey(b Booking, field SortField) time.Time {
	if field == SortScheduledAt {
		return b.ScheduledAt
	}
	return b.CreatedAt
}

var _ Repository = (*MemoryRepository)(nil)
