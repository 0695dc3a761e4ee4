package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T, repo *MemoryRepository, provider string, at ...time.Time) []*Booking {
	t.Helper()
	out := make([]*Booking, 0, len(at))
	for _, ts := range at {
		b, err := repo.Create(context.Background(), NewBooking{SubjectID: "sub", ProviderID: provider, ScheduledAt: ts})
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestMemoryRepository_CountRespectsInclusiveWindow(t *testing.T) {
	repo := NewMemoryRepository()
	min := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	max := min.Add(24*time.Hour - time.Millisecond)
	created := seedMemory(t, repo, "prov", min, max, max.Add(time.Millisecond))
	for _, b := range created {
		require.NoError(t, repo.UpdateFields(context.Background(), Filter{ID: b.ID}, Fields{Active: BoolPtr(true)}))
	}

	n, err := repo.Count(context.Background(), Filter{ProviderID: "prov", Active: BoolPtr(true), MinDate: &min, MaxDate: &max})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryRepository_CreateIsInactive(t *testing.T) {
	repo := NewMemoryRepository()
	b := seedMemory(t, repo, "prov", time.Now())[0]
	assert.False(t, b.Active)

	n, err := repo.Count(context.Background(), Filter{Active: BoolPtr(true)})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryRepository_FindSortsAndPages(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	seedMemory(t, repo, "prov", base.Add(2*time.Hour), base, base.Add(time.Hour))

	page, err := repo.Find(context.Background(), Filter{}, Sort{Field: SortScheduledAt}, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, base, page[0].ScheduledAt)
	assert.Equal(t, base.Add(time.Hour), page[1].ScheduledAt)

	rest, err := repo.Find(context.Background(), Filter{}, Sort{Field: SortScheduledAt}, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, base.Add(2*time.Hour), rest[0].ScheduledAt)

	beyond, err := repo.Find(context.Background(), Filter{}, Sort{Field: SortScheduledAt}, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	desc, err := repo.Find(context.Background(), Filter{}, Sort{Field: SortScheduledAt, Desc: true}, 0, 0)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, base.Add(2*time.Hour), desc[0].ScheduledAt)
}

func TestMemoryRepository_UpdateScopedByProvider(t *testing.T) {
	repo := NewMemoryRepository()
	b := seedMemory(t, repo, "prov-a", time.Now())[0]

	err := repo.UpdateFields(context.Background(), Filter{ID: b.ID, ProviderID: "prov-b"}, Fields{Active: BoolPtr(true)})
	assert.ErrorIs(t, err, ErrNotFound)

	moved := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateFields(context.Background(), Filter{ID: b.ID, ProviderID: "prov-a"}, Fields{ScheduledAt: &moved}))

	got, err := repo.FindByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, moved, got.ScheduledAt)
	assert.False(t, got.Active)

	assert.ErrorIs(t, repo.UpdateFields(context.Background(), Filter{}, Fields{}), ErrUnscopedUpdate)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	b := seedMemory(t, repo, "prov", time.Now())[0]

	require.NoError(t, repo.Delete(context.Background(), b.ID))
	assert.ErrorIs(t, repo.Delete(context.Background(), b.ID), ErrNotFound)
	_, err := repo.FindByID(context.Background(), b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
