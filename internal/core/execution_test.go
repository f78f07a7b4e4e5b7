package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/model"
)

func scanExecRow(e model.BackupExecution) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = e.ID
		*dest[1].(*string) = e.BackupPlanID
		*dest[2].(*string) = e.Name
		*dest[3].(*time.Time) = e.StartDateTime
		*dest[4].(**time.Time) = e.EndDateTime
		*dest[5].(**string) = e.CurrentFileName
		*dest[6].(**string) = e.CurrentFilePath
		*dest[7].(**int64) = e.TotalFilesToProcess
		*dest[8].(*int64) = e.CurrentFileIndex
		return nil
	}
}

func TestExecutionService_Create_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	err := svc.Create(ctx, &model.BackupExecution{
		ID:            "exec-1",
		BackupPlanID:  "plan-1",
		Name:          "2025-03-01 02:00:00",
		StartDateTime: time.Now(),
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestExecutionService_Create_SecondOpenRejected(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	// Unique violation from the partial index on open executions.
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	err := svc.Create(ctx, &model.BackupExecution{ID: "exec-2", BackupPlanID: "plan-1"})
	assert.ErrorIs(t, err, ErrExecutionInProgress)
}

func TestExecutionService_Create_InsertError(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("db down"))

	err := svc.Create(ctx, &model.BackupExecution{ID: "exec-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert execution")
}

func TestExecutionService_GetByID(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	want := model.BackupExecution{
		ID:            "exec-1",
		BackupPlanID:  "plan-1",
		Name:          "2025-03-01 02:00:00",
		StartDateTime: start,
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: scanExecRow(want)})

	got, err := svc.GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, &want, got)
}

func TestExecutionService_ListByPlan(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	db.On("Query", ctx, sqlContains("ORDER BY start_date_time DESC"), mock.Anything).
		Return(newMockRows(
			scanExecRow(model.BackupExecution{ID: "exec-2", BackupPlanID: "plan-1"}),
			scanExecRow(model.BackupExecution{ID: "exec-1", BackupPlanID: "plan-1"}),
		), nil)

	execs, err := svc.ListByPlan(ctx, "plan-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, "exec-2", execs[0].ID)
	assert.Equal(t, "exec-1", execs[1].ID)
}

func TestExecutionService_Open(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	db.On("Query", ctx, sqlContains("end_date_time IS NULL"), mock.Anything).
		Return(newMockRows(scanExecRow(model.BackupExecution{ID: "exec-1"})), nil)

	execs, err := svc.Open(ctx)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "exec-1", execs[0].ID)
}

func TestExecutionService_Close_IsGuarded(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	// The WHERE clause makes a double close a no-op.
	db.On("Exec", ctx, sqlContains("end_date_time IS NULL"), mock.Anything).
		Return(pgconn.CommandTag{}, nil)

	require.NoError(t, svc.Close(ctx, "exec-1", time.Now()))
	db.AssertExpectations(t)
}

func TestExecutionService_SetTotalFiles_OnlyOnce(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	db.On("Exec", ctx, sqlContains("total_files_to_process IS NULL"), mock.Anything).
		Return(pgconn.CommandTag{}, nil)

	require.NoError(t, svc.SetTotalFiles(ctx, "exec-1", 42))
	db.AssertExpectations(t)
}

func TestExecutionService_UpdateProgress(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"),
		[]any{"a.txt", "dir/a.txt", int64(7), "exec-1"}).
		Return(pgconn.CommandTag{}, nil)

	require.NoError(t, svc.UpdateProgress(ctx, "exec-1", "a.txt", "dir/a.txt", 7))
	db.AssertExpectations(t)
}
