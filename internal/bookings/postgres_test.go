package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingColumns = []string{"id", "subject_id", "provider_id", "scheduled_at", "active", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	repo := NewPostgresRepository(mock)
	repo.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return repo, mock
}

func TestPostgresCount_ProviderDayActive(t *testing.T) {
	repo, mock := newMockRepo(t)
	min := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	max := min.Add(24*time.Hour - time.Millisecond)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments WHERE provider_id = \$1 AND active = \$2 AND scheduled_at >= \$3 AND scheduled_at <= \$4`).
		WithArgs("prov-1", true, min, max).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.Count(context.Background(), Filter{
		ProviderID: "prov-1",
		Active:     BoolPtr(true),
		MinDate:    &min,
		MaxDate:    &max,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFind_SortAndPaging(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)
	id := uuid.NewString()

	mock.ExpectQuery(`FROM appointments WHERE active = \$1 ORDER BY scheduled_at ASC, id ASC LIMIT \$2 OFFSET \$3`).
		WithArgs(true, 30, 60).
		WillReturnRows(pgxmock.NewRows(bookingColumns).
			AddRow(id, "sub-1", "prov-1", at, true, at.Add(-48*time.Hour), at.Add(-48*time.Hour)))

	got, err := repo.Find(context.Background(), Filter{Active: BoolPtr(true)}, Sort{Field: SortScheduledAt}, 60, 30)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "sub-1", got[0].SubjectID)
	assert.True(t, got[0].Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFind_DefaultLimitAndDescending(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM appointments ORDER BY created_at DESC, id DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(30, 0).
		WillReturnRows(pgxmock.NewRows(bookingColumns))

	got, err := repo.Find(context.Background(), Filter{}, DefaultSort, -5, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		id := uuid.NewString()
		at := time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`FROM appointments WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(bookingColumns).AddRow(id, "sub", "prov", at, false, at, at))

		b, err := repo.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, at, b.ScheduledAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		id := uuid.NewString()
		mock.ExpectQuery(`FROM appointments WHERE id = \$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

		_, err := repo.FindByID(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("malformed id skips the query", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		_, err := repo.FindByID(context.Background(), "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCreate_InsertsInactive(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)
	now := repo.now().UTC()

	mock.ExpectExec(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), "sub-1", "prov-1", at, false, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	b, err := repo.Create(context.Background(), NewBooking{SubjectID: "sub-1", ProviderID: "prov-1", ScheduledAt: at})
	require.NoError(t, err)
	assert.False(t, b.Active)
	_, parseErr := uuid.Parse(b.ID)
	assert.NoError(t, parseErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate_WrapsError(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("boom")
	mock.ExpectExec(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(boom)

	_, err := repo.Create(context.Background(), NewBooking{SubjectID: "s", ProviderID: "p", ScheduledAt: time.Now()})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateFields(t *testing.T) {
	t.Run("date and active scoped to provider", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		id := uuid.NewString()
		at := time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)
		mock.ExpectExec(`UPDATE appointments SET scheduled_at = \$1, active = \$2, updated_at = \$3 WHERE id = \$4 AND provider_id = \$5`).
			WithArgs(at, true, repo.now().UTC(), id, "prov-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.UpdateFields(context.Background(), Filter{ID: id, ProviderID: "prov-1"}, Fields{ScheduledAt: &at, Active: BoolPtr(true)})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows is not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		id := uuid.NewString()
		mock.ExpectExec(`UPDATE appointments SET active = \$1, updated_at = \$2 WHERE id = \$3`).
			WithArgs(true, pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateFields(context.Background(), Filter{ID: id}, Fields{Active: BoolPtr(true)})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unscoped", func(t *testing.T) {
		repo, _ := newMockRepo(t)
		err := repo.UpdateFields(context.Background(), Filter{ProviderID: "p"}, Fields{Active: BoolPtr(true)})
		assert.ErrorIs(t, err, ErrUnscopedUpdate)
	})
}

func TestPostgresDelete(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.NewString()
	mock.ExpectExec(`DELETE FROM appointments WHERE id = \$1`).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM appointments WHERE id = \$1`).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), id))
	assert.ErrorIs(t, repo.Delete(context.Background(), id), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseSort(t *testing.T) {
	cases := map[string]Sort{
		"":             DefaultSort,
		"createdAt":    {Field: SortCreatedAt},
		"-scheduledAt": {Field: SortScheduledAt, Desc: true},
	}
	for raw, want := range cases {
		got, err := ParseSort(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseSort("-password")
	assert.ErrorIs(t, err, ErrInvalidSort)
	assert.Equal(t, "-createdAt", DefaultSort.String())
}
