package report

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2021, 9, 5, 8, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Minute)

	mock.ExpectQuery("INSERT INTO sync_runs").
		WithArgs("202135", KindProcess, 3, 12, 0, false, "", started, finished).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	rec := NewRecorder(db)
	id, err := rec.Record(context.Background(), Run{
		Batch:          "202135",
		Kind:           KindProcess,
		NewMembers:     3,
		UpdatedMembers: 12,
		StartedAt:      started,
		FinishedAt:     finished,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_Recent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2021, 9, 5, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "batch", "kind", "new_members", "updated_members",
		"removed_members", "dry_run", "error", "started_at", "finished_at",
	}).AddRow(int64(7), "202135", KindLapsed, 0, 0, 4, false, "", started, started.Add(time.Minute))

	mock.ExpectQuery("SELECT (.+) FROM sync_runs").
		WithArgs("202135", 10).
		WillReturnRows(rows)

	rec := NewRecorder(db)
	runs, err := rec.Recent(context.Background(), "202135", 10)

	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, KindLapsed, runs[0].Kind)
	assert.Equal(t, 4, runs[0].RemovedMembers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sync_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := NewRecorder(db)
	require.NoError(t, rec.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
