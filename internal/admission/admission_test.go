package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-reminders/internal/bookings"
	"github.com/wolfman30/booking-reminders/internal/observability/metrics"
	"github.com/wolfman30/booking-reminders/internal/serviceday"
)

func kyiv(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	return loc
}

func seedActive(t *testing.T, repo *bookings.MemoryRepository, provider string, at ...time.Time) {
	t.Helper()
	for _, ts := range at {
		b, err := repo.Create(context.Background(), bookings.NewBooking{SubjectID: "sub", ProviderID: provider, ScheduledAt: ts})
		require.NoError(t, err)
		require.NoError(t, repo.UpdateFields(context.Background(), bookings.Filter{ID: b.ID}, bookings.Fields{Active: bookings.BoolPtr(true)}))
	}
}

func TestTryAdmit_DeniesAtCapacity(t *testing.T) {
	loc := kyiv(t)
	repo := bookings.NewMemoryRepository()
	day := time.Date(2025, 3, 15, 9, 0, 0, 0, loc)
	seedActive(t, repo, "doc", day, day.Add(time.Hour), day.Add(2*time.Hour), day.Add(3*time.Hour))

	c := NewController(repo, serviceday.NewCalculator(2, loc), 4,
		WithMetrics(metrics.NewAdmissionMetrics(prometheus.NewRegistry())))

	err := c.TryAdmit(context.Background(), SiteCreate, "doc", day.Add(5*time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAdmissionDenied)

	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "15.03.25", denied.Date)
	assert.Equal(t, "doc", denied.ProviderID)
	assert.Equal(t, SiteCreate, denied.Site)
}

func TestTryAdmit_AdmitsBelowCapacity(t *testing.T) {
	loc := kyiv(t)
	repo := bookings.NewMemoryRepository()
	day := time.Date(2025, 3, 15, 9, 0, 0, 0, loc)
	seedActive(t, repo, "doc", day, day.Add(time.Hour), day.Add(2*time.Hour))
	seedActive(t, repo, "other", day, day, day, day)

	c := NewController(repo, serviceday.NewCalculator(2, loc), 4)
	assert.NoError(t, c.TryAdmit(context.Background(), SiteAccept, "doc", day))
}

func TestTryAdmit_IgnoresInactive(t *testing.T) {
	loc := kyiv(t)
	repo := bookings.NewMemoryRepository()
	day := time.Date(2025, 3, 15, 9, 0, 0, 0, loc)
	for i := 0; i < 6; i++ {
		_, err := repo.Create(context.Background(), bookings.NewBooking{SubjectID: "s", ProviderID: "doc", ScheduledAt: day})
		require.NoError(t, err)
	}

	c := NewController(repo, serviceday.NewCalculator(2, loc), 4)
	assert.NoError(t, c.TryAdmit(context.Background(), SiteCreate, "doc", day))
}

func TestTryAdmit_UsesServiceDayNotCalendarDay(t *testing.T) {
	loc := kyiv(t)
	repo := bookings.NewMemoryRepository()
	// 01:30 on the 16th still belongs to the service day that began on the 15th.
	lateNight := time.Date(2025, 3, 16, 1, 30, 0, 0, loc)
	seedActive(t, repo, "doc", lateNight)

	c := NewController(repo, serviceday.NewCalculator(2, loc), 1)

	err := c.TryAdmit(context.Background(), SiteCreate, "doc", time.Date(2025, 3, 15, 10, 0, 0, 0, loc))
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "15.03.25", denied.Date)

	assert.NoError(t, c.TryAdmit(context.Background(), SiteCreate, "doc", time.Date(2025, 3, 16, 2, 0, 0, 0, loc)))
}

type failingCounter struct{ err error }

func (f failingCounter) Count(context.Context, bookings.Filter) (int, error) { return 0, f.err }

func TestTryAdmit_PropagatesRepositoryError(t *testing.T) {
	boom := errors.New("db down")
	c := NewController(failingCounter{err: boom}, serviceday.NewCalculator(2, time.UTC), 4)

	err := c.TryAdmit(context.Background(), SiteCreate, "doc", time.Now())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAdmissionDenied)
}

func TestAdmit_SkipsCommitWhenDenied(t *testing.T) {
	loc := kyiv(t)
	repo := bookings.NewMemoryRepository()
	day := time.Date(2025, 3, 15, 9, 0, 0, 0, loc)
	seedActive(t, repo, "doc", day)

	c := NewController(repo, serviceday.NewCalculator(2, loc), 1)
	called := false
	err := c.Admit(context.Background(), SiteCreate, "doc", day, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrAdmissionDenied)
	assert.False(t, called)
}

func TestAdmit_WithLockerNeverOverbooks(t *testing.T) {
	loc := kyiv(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := bookings.NewMemoryRepository()
	day := time.Date(2025, 3, 15, 9, 0, 0, 0, loc)

	c := NewController(repo, serviceday.NewCalculator(2, loc), 4,
		WithLocker(NewRedisLocker(client, 5*time.Second, 5*time.Second, nil)))

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Admit(context.Background(), SiteAccept, "doc", day, func(ctx context.Context) error {
				b, err := repo.Create(ctx, bookings.NewBooking{SubjectID: "s", ProviderID: "doc", ScheduledAt: day})
				if err != nil {
					return err
				}
				return repo.UpdateFields(ctx, bookings.Filter{ID: b.ID}, bookings.Fields{Active: bookings.BoolPtr(true)})
			})
			if err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(4), admitted.Load())
	n, err := repo.Count(context.Background(), bookings.Filter{ProviderID: "doc", Active: bookings.BoolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRedisLocker_BusyAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, time.Second, 0, nil)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "admission:doc:2025-03-15")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "admission:doc:2025-03-15")
	assert.ErrorIs(t, err, ErrLockBusy)

	release()
	assert.False(t, mr.Exists("admission:doc:2025-03-15"))

	release2, err := locker.Acquire(ctx, "admission:doc:2025-03-15")
	require.NoError(t, err)
	release2()
}

func TestRedisLocker_ReleaseDoesNotDropForeignLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, time.Second, 0, nil)

	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)

	// The lease expires and someone else takes the lock.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("k", "someone-else"))

	release()
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLockKey(t *testing.T) {
	loc := kyiv(t)
	w := serviceday.NewCalculator(2, loc).For(time.Date(2025, 3, 16, 1, 0, 0, 0, loc))
	assert.Equal(t, "admission:doc:2025-03-15", LockKey("doc", w))
}

type stalledCounter struct{}

func (stalledCounter) Count(ctx context.Context, _ bookings.Filter) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestTryAdmit_StalledCountTimesOut(t *testing.T) {
	loc := kyiv(t)
	c := NewController(stalledCounter{}, serviceday.NewCalculator(2, loc), 4, WithTimeout(20*time.Millisecond))

	start := time.Now()
	err := c.TryAdmit(context.Background(), SiteCreate, "doc", time.Date(2025, 3, 15, 9, 0, 0, 0, loc))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrAdmissionDenied)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAdmit_StalledCountSkipsCommit(t *testing.T) {
	loc := kyiv(t)
	c := NewController(stalledCounter{}, serviceday.NewCalculator(2, loc), 4, WithTimeout(20*time.Millisecond))

	committed := false
	err := c.Admit(context.Background(), SiteAccept, "doc", time.Date(2025, 3, 15, 9, 0, 0, 0, loc), func(context.Context) error {
		committed = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, committed)
}
