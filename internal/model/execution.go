package model

import "time"

// BackupExecution is one run attempt of a plan. EndDateTime is null while
// the run is open and set exactly once when it closes — on success, on rsync
// failure, or by crash reconciliation at startup.
type BackupExecution struct {
	ID                  string     `json:"id"`
	BackupPlanID        string     `json:"backup_plan_id"`
	Name                string     `json:"name"`
	StartDateTime       time.Time  `json:"start_date_time"`
	EndDateTime         *time.Time `json:"end_date_time,omitempty"`
	CurrentFileName     *string    `json:"current_file_name,omitempty"`
	CurrentFilePath     *string    `json:"current_file_path,omitempty"`
	TotalFilesToProcess *int64     `json:"total_files_to_process,omitempty"`
	CurrentFileIndex    int64      `json:"current_file_index"`
}

// Finished reports whether the execution has closed.
func (e *BackupExecution) Finished() bool {
	return e.EndDateTime != nil
}

// Duration is end−start for a closed execution, now−start for an open one.
func (e *BackupExecution) Duration(now time.Time) time.Duration {
	if e.EndDateTime != nil {
		return e.EndDateTime.Sub(e.StartDateTime)
	}
	return now.Sub(e.StartDateTime)
}

// ExecutionStatus is the human-meaningful phase of an execution, derived
// from its persisted log rather than from any in-memory process handle.
type ExecutionStatus string

const (
	StatusStarting    ExecutionStatus = "Starting"
	StatusAnalyzing   ExecutionStatus = "Analyzing"
	StatusCopying     ExecutionStatus = "Copying"
	StatusFinalizing  ExecutionStatus = "Finalizing"
	StatusCompleted   ExecutionStatus = "Completed"
	StatusInterrupted ExecutionStatus = "Interrupted"
)

// ExecutionStats is the live/final view served by the stats endpoint.
type ExecutionStats struct {
	ExecutionID         string          `json:"execution_id"`
	BackupPlanID        string          `json:"backup_plan_id"`
	Status              ExecutionStatus `json:"status"`
	StartDateTime       time.Time       `json:"start_date_time"`
	EndDateTime         *time.Time      `json:"end_date_time,omitempty"`
	DurationSeconds     float64         `json:"duration_seconds"`
	CurrentFileName     *string         `json:"current_file_name,omitempty"`
	CurrentFilePath     *string         `json:"current_file_path,omitempty"`
	CurrentFileIndex    int64           `json:"current_file_index"`
	TotalFilesToProcess *int64          `json:"total_files_to_process,omitempty"`
	Command             string          `json:"command,omitempty"`
	Stats               *RsyncStats     `json:"stats,omitempty"`
	FinishReason        string          `json:"finish_reason,omitempty"`
}
