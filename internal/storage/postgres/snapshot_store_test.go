package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

func TestSnapshotPutUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	snap := monitor.Snapshot{
		AccountID:  "20210001",
		CapturedAt: now,
		Courses: []monitor.Course{
			{Name: "Calculus I", Exams: []monitor.ExamRecord{{Label: "Midterm", Score: "70"}}},
		},
	}
	coursesJSON, err := json.Marshal(snap.Courses)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs(snap.AccountID, snap.CapturedAt, coursesJSON).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Put(context.Background(), snap)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotGetRoundTrip(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	courses := []monitor.Course{
		{Name: "Calculus I", Exams: []monitor.ExamRecord{{Label: "Midterm", Score: "85"}}},
	}
	coursesJSON, err := json.Marshal(courses)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT account_id, captured_at, courses FROM snapshots").
		WithArgs("20210001").
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "captured_at", "courses"}).
			AddRow("20210001", now, coursesJSON))

	snap, err := store.Get(context.Background(), "20210001")
	require.NoError(t, err)
	require.Equal(t, "20210001", snap.AccountID)
	require.Equal(t, now, snap.CapturedAt)
	require.Equal(t, courses, snap.Courses)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT account_id, captured_at, courses FROM snapshots").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "captured_at", "courses"}))

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, monitor.ErrSnapshotNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotPutRequiresAccountID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStoreWithPool(mock)
	require.NoError(t, err)

	err = store.Put(context.Background(), monitor.Snapshot{})
	require.Error(t, err)
}

func TestSnapshotPutWrapsStorageError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs("a", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = store.Put(context.Background(), monitor.Snapshot{AccountID: "a"})
	require.ErrorIs(t, err, monitor.ErrStorage)
}
