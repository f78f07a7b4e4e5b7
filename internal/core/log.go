package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

const logColumns = `id, execution_id, backup_plan_id, datetime, file_name, file_path, size, action, reason`

// LogService is the append-only sink for execution log entries. Rows are
// never updated; retention cleanup happens elsewhere, in bulk.
type LogService struct {
	db DB
}

func NewLogService(db DB) *LogService {
	return &LogService{db: db}
}

// Append writes one log entry, filling in the ID and timestamp when unset.
func (s *LogService) Append(ctx context.Context, entry *model.LogEntry) error {
	if entry.ID == "" {
		entry.ID = platform.NewID()
	}
	if entry.Datetime.IsZero() {
		entry.Datetime = time.Now()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO log_entries (`+logColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.ExecutionID, entry.BackupPlanID, entry.Datetime,
		entry.FileName, entry.FilePath, entry.Size, entry.Action, entry.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// ListParams filters and pages a per-file log listing.
type ListParams struct {
	Action string // empty means all actions
	Search string // substring match on file name
	Order  string // "asc" or "desc" by datetime
	Limit  int
	Offset int
}

// List returns per-file records for an execution. Sentinel entries are
// never included: the reserved file names and the Milestone action are a
// private wire format, not user-facing file events.
func (s *LogService) List(ctx context.Context, executionID string, params ListParams) ([]model.LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM log_entries
		 WHERE execution_id = $1
		   AND file_name NOT IN ($2, $3, $4, $5)
		   AND action != $6`
	args := []any{executionID,
		model.SentinelCommand, model.SentinelStats, model.SentinelTransferSpeed, model.SentinelFinish,
		model.ActionMilestone}
	argIdx := 7

	if params.Action != "" {
		query += fmt.Sprintf(` AND action = $%d`, argIdx)
		args = append(args, params.Action)
		argIdx++
	}
	if params.Search != "" {
		query += fmt.Sprintf(` AND file_name ILIKE $%d`, argIdx)
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}

	order := "ASC"
	if params.Order == "desc" {
		order = "DESC"
	}
	query += ` ORDER BY datetime ` + order
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list log entries for execution %s: %w", executionID, err)
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.BackupPlanID, &e.Datetime,
			&e.FileName, &e.FilePath, &e.Size, &e.Action, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}

// Entries returns the full ordered log of an execution, sentinels included.
// The status deriver and the stats endpoint read the log through this.
func (s *LogService) Entries(ctx context.Context, executionID string) ([]model.LogEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+logColumns+` FROM log_entries
		 WHERE execution_id = $1 ORDER BY datetime`, executionID)
	if err != nil {
		return nil, fmt.Errorf("load log for execution %s: %w", executionID, err)
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.BackupPlanID, &e.Datetime,
			&e.FileName, &e.FilePath, &e.Size, &e.Action, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}
