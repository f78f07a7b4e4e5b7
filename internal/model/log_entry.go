package model

import "time"

// Log entry actions. The set is closed; sentinel rows reuse it so the log
// table stays the single persisted record of a run.
const (
	ActionCopy      = "Copy"
	ActionDelete    = "Delete"
	ActionIgnored   = "Ignored"
	ActionMilestone = "Milestone"
	ActionCopyError = "CopyError"
)

// Reserved file names identifying sentinel entries. These exact tokens are
// a wire format shared with log consumers — never rename them.
const (
	SentinelCommand       = "rsync-command"
	SentinelStats         = "rsync-stats"
	SentinelTransferSpeed = "rsync-transfer-speed"
	SentinelFinish        = "rsync-finish"
)

// Milestone reasons marking phase boundaries within a run.
const (
	MilestoneSourceAnalysisStarted = "SourceAnalysisStarted"
	MilestoneCopiesStarted         = "CopiesStarted"
	MilestoneCopiesFinished        = "CopiesFinished"
)

// Substrings of the rsync-finish reason the status deriver inspects.
const (
	FinishSuccessMarker = "finished successfully"
	FinishPartialMarker = "partial transfer"
)

// LogEntry is one appended event of an execution: either a per-file change
// record or a sentinel carrying execution-wide facts.
type LogEntry struct {
	ID           string    `json:"id"`
	ExecutionID  string    `json:"execution_id"`
	BackupPlanID string    `json:"backup_plan_id"`
	Datetime     time.Time `json:"datetime"`
	FileName     string    `json:"file_name"`
	FilePath     string    `json:"file_path"`
	Size         *int64    `json:"size,omitempty"`
	Action       string    `json:"action"`
	Reason       string    `json:"reason,omitempty"`
}

// EntryKind is the closed classification of a log entry, computed from the
// persisted shape so consumers never string-sniff reserved file names.
type EntryKind int

const (
	KindFileChange EntryKind = iota
	KindCommand
	KindStats
	KindTransferSpeed
	KindFinish
	KindMilestone
)

func (k EntryKind) String() string {
	switch k {
	case KindCommand:
		return "Command"
	case KindStats:
		return "Stats"
	case KindTransferSpeed:
		return "TransferSpeed"
	case KindFinish:
		return "Finish"
	case KindMilestone:
		return "Milestone"
	default:
		return "FileChange"
	}
}

// Kind classifies the entry.
func (e *LogEntry) Kind() EntryKind {
	switch e.FileName {
	case SentinelCommand:
		return KindCommand
	case SentinelStats:
		return KindStats
	case SentinelTransferSpeed:
		return KindTransferSpeed
	case SentinelFinish:
		return KindFinish
	}
	if e.Action == ActionMilestone {
		return KindMilestone
	}
	return KindFileChange
}

// IsSentinel reports whether the entry must be hidden from per-file listings.
func (e *LogEntry) IsSentinel() bool {
	return e.Kind() != KindFileChange
}
