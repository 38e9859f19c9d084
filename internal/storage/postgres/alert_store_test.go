package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestAlertRecordUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewAlertStoreWithPool(mock, fixedClock{now: now})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs("20210001", "fetch_error", "login failed", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Record(context.Background(), "20210001", monitor.AlertFetchError, "login failed")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRecordRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAlertStoreWithPool(mock, fixedClock{now: time.Now()})
	require.NoError(t, err)

	err = store.Record(context.Background(), "20210001", monitor.AlertKind("bogus"), "x")
	require.Error(t, err)
}

func TestAlertGetReturnsRecordsByAccount(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewAlertStoreWithPool(mock, fixedClock{now: now})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT account_id, kind, detail, created_at FROM alerts").
		WithArgs("blocking_condition").
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "kind", "detail", "created_at"}).
			AddRow("20210001", "blocking_condition", "survey pending", now).
			AddRow("20210002", "blocking_condition", "survey pending", now))

	alerts, err := store.Get(context.Background(), monitor.AlertBlockingCondition)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, monitor.AlertBlockingCondition, alerts["20210001"].Kind)
	require.Equal(t, "survey pending", alerts["20210002"].Detail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertClearDeletesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAlertStoreWithPool(mock, fixedClock{now: time.Now()})
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM alerts").
		WithArgs("20210001", "fetch_error").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err = store.Clear(context.Background(), "20210001", monitor.AlertFetchError)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
