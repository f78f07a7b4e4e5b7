package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/backhaul/internal/model"
)

// ErrExecutionInProgress is returned when a plan already has an open
// execution. At most one execution is open per plan at a time.
var ErrExecutionInProgress = errors.New("an execution is already in progress for this plan")

const executionColumns = `id, backup_plan_id, name, start_date_time, end_date_time, current_file_name, current_file_path, total_files_to_process, current_file_index`

// ExecutionService manages backup execution rows. Log entries live in
// LogService; this service owns the row lifecycle and the live cursor.
type ExecutionService struct {
	db DB
}

func NewExecutionService(db DB) *ExecutionService {
	return &ExecutionService{db: db}
}

// Create inserts a new open execution. The partial unique index on open
// executions rejects a second open row for the same plan.
func (s *ExecutionService) Create(ctx context.Context, exec *model.BackupExecution) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO backup_executions (id, backup_plan_id, name, start_date_time, current_file_index)
		 VALUES ($1, $2, $3, $4, 0)`,
		exec.ID, exec.BackupPlanID, exec.Name, exec.StartDateTime,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExecutionInProgress
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func scanExecution(row interface{ Scan(dest ...any) error }) (model.BackupExecution, error) {
	var e model.BackupExecution
	err := row.Scan(&e.ID, &e.BackupPlanID, &e.Name, &e.StartDateTime, &e.EndDateTime,
		&e.CurrentFileName, &e.CurrentFilePath, &e.TotalFilesToProcess, &e.CurrentFileIndex)
	return e, err
}

func (s *ExecutionService) GetByID(ctx context.Context, id string) (*model.BackupExecution, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM backup_executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return &e, nil
}

// ListByPlan returns executions for a plan, newest first.
func (s *ExecutionService) ListByPlan(ctx context.Context, planID string, limit int, offset int) ([]model.BackupExecution, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+executionColumns+` FROM backup_executions
		 WHERE backup_plan_id = $1
		 ORDER BY start_date_time DESC
		 LIMIT $2 OFFSET $3`,
		planID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var execs []model.BackupExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return execs, nil
}

// Open returns every execution whose end_date_time is still null. Used by
// crash reconciliation at startup.
func (s *ExecutionService) Open(ctx context.Context) ([]model.BackupExecution, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+executionColumns+` FROM backup_executions WHERE end_date_time IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("list open executions: %w", err)
	}
	defer rows.Close()

	var execs []model.BackupExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return execs, nil
}

// Close sets end_date_time exactly once. Closing an already closed
// execution is a no-op.
func (s *ExecutionService) Close(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_executions SET end_date_time = $1
		 WHERE id = $2 AND end_date_time IS NULL`,
		endedAt, id,
	)
	if err != nil {
		return fmt.Errorf("close execution %s: %w", id, err)
	}
	return nil
}

// UpdateProgress mirrors the in-memory cursor onto the execution row.
// Last writer wins; readers get eventual consistency within the run.
func (s *ExecutionService) UpdateProgress(ctx context.Context, id, fileName, filePath string, index int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_executions
		 SET current_file_name = $1, current_file_path = $2, current_file_index = $3
		 WHERE id = $4`,
		fileName, filePath, index, id,
	)
	if err != nil {
		return fmt.Errorf("update execution %s progress: %w", id, err)
	}
	return nil
}

// SetTotalFiles records the total once known; it never changes afterwards.
func (s *ExecutionService) SetTotalFiles(ctx context.Context, id string, total int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_executions SET total_files_to_process = $1
		 WHERE id = $2 AND total_files_to_process IS NULL`,
		total, id,
	)
	if err != nil {
		return fmt.Errorf("set execution %s total files: %w", id, err)
	}
	return nil
}
