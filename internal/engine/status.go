package engine

import (
	"strings"
	"time"

	"github.com/edvin/backhaul/internal/model"
)

// DeriveStatus computes the execution phase purely from persisted state, so
// it stays correct across service restarts and after crashes.
//
// Finished executions are classified by the rsync-finish sentinel: absent,
// CopyError, or a reason that mentions neither a successful nor a partial
// transfer all mean the run was interrupted. Open executions are classified
// by the most recent milestone.
func DeriveStatus(exec *model.BackupExecution, entries []model.LogEntry) model.ExecutionStatus {
	if exec.Finished() {
		finish := lastFinish(entries)
		if finish == nil || finish.Action == model.ActionCopyError {
			return model.StatusInterrupted
		}
		if !strings.Contains(finish.Reason, model.FinishSuccessMarker) &&
			!strings.Contains(finish.Reason, model.FinishPartialMarker) {
			return model.StatusInterrupted
		}
		return model.StatusCompleted
	}

	switch lastMilestoneReason(entries) {
	case model.MilestoneSourceAnalysisStarted:
		return model.StatusAnalyzing
	case model.MilestoneCopiesStarted:
		return model.StatusCopying
	case model.MilestoneCopiesFinished:
		return model.StatusFinalizing
	default:
		return model.StatusStarting
	}
}

func lastFinish(entries []model.LogEntry) *model.LogEntry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind() == model.KindFinish {
			return &entries[i]
		}
	}
	return nil
}

func lastMilestoneReason(entries []model.LogEntry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind() == model.KindMilestone {
			return entries[i].Reason
		}
	}
	return ""
}

// BuildExecutionStats assembles the stats view served by the API: derived
// status, live or last-persisted cursor, the recorded command line, and the
// parsed aggregate when present.
func BuildExecutionStats(exec *model.BackupExecution, entries []model.LogEntry, snap *ProgressSnapshot, now time.Time) *model.ExecutionStats {
	stats := &model.ExecutionStats{
		ExecutionID:         exec.ID,
		BackupPlanID:        exec.BackupPlanID,
		Status:              DeriveStatus(exec, entries),
		StartDateTime:       exec.StartDateTime,
		EndDateTime:         exec.EndDateTime,
		DurationSeconds:     exec.Duration(now).Seconds(),
		CurrentFileName:     exec.CurrentFileName,
		CurrentFilePath:     exec.CurrentFilePath,
		CurrentFileIndex:    exec.CurrentFileIndex,
		TotalFilesToProcess: exec.TotalFilesToProcess,
	}

	// A live cursor beats the last-persisted one.
	if snap != nil {
		if snap.FileName != "" {
			stats.CurrentFileName = &snap.FileName
			stats.CurrentFilePath = &snap.FilePath
		}
		stats.CurrentFileIndex = snap.Index
		if snap.Total != nil {
			stats.TotalFilesToProcess = snap.Total
		}
	}

	for i := range entries {
		switch entries[i].Kind() {
		case model.KindCommand:
			stats.Command = entries[i].FilePath
		case model.KindStats:
			if parsed, err := model.ParseStatsReason(entries[i].Reason); err == nil {
				stats.Stats = parsed
			}
		case model.KindFinish:
			stats.FinishReason = entries[i].Reason
		}
	}

	return stats
}
