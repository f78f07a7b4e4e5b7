package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

var (
	// ErrMissingTransport is returned before any process is spawned when a
	// plan lacks host, user, or key material.
	ErrMissingTransport = errors.New("plan has no transport configuration")

	// ErrExecutionInProgress rejects a second concurrent run of the same
	// plan. At most one execution is open per plan at a time.
	ErrExecutionInProgress = errors.New("an execution is already in progress for this plan")

	// ErrNotRunning is returned by Cancel for executions this process does
	// not own.
	ErrNotRunning = errors.New("execution is not running")
)

// Store is the persistence the orchestrator runs against.
type Store interface {
	CreateExecution(ctx context.Context, exec *model.BackupExecution) error
	CloseExecution(ctx context.Context, executionID string, endedAt time.Time) error
	UpdateProgress(ctx context.Context, executionID, fileName, filePath string, index int64) error
	SetTotalFiles(ctx context.Context, executionID string, total int64) error
	AppendLog(ctx context.Context, entry *model.LogEntry) error
	OpenExecutions(ctx context.Context) ([]model.BackupExecution, error)
}

// Notifier is told about finished executions. Implementations swallow their
// own failures; a broken notifier never affects a run's recorded outcome.
type Notifier interface {
	ExecutionFinished(ctx context.Context, event FinishEvent)
}

// FinishEvent describes a completed or interrupted run.
type FinishEvent struct {
	Plan      *model.BackupPlan
	Execution *model.BackupExecution
	Status    model.ExecutionStatus
	Success   bool
	Reason    string
	Stats     *model.RsyncStats
}

// SimulationResult is the synchronous outcome of a dry run. Nothing is
// persisted and the destination is never mutated.
type SimulationResult struct {
	Command  string            `json:"command"`
	Changes  []FileChange      `json:"changes"`
	Stats    *model.RsyncStats `json:"stats,omitempty"`
	ExitCode int               `json:"exit_code"`
	Error    string            `json:"error,omitempty"`
}

// Orchestrator drives backup executions end to end: it builds the transfer
// command, streams and parses rsync output, appends the execution log, and
// always closes the execution row — success, rsync failure, cancellation,
// or panic — so no run is ever left permanently open.
type Orchestrator struct {
	store    Store
	invoker  *Invoker
	notifier Notifier
	opts     Options
	logger   zerolog.Logger

	mu           sync.Mutex
	runningPlans map[string]string // plan ID -> execution ID
	cancels      map[string]context.CancelFunc
	wg           sync.WaitGroup

	progress *progressRegistry
}

func NewOrchestrator(store Store, notifier Notifier, opts Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:        store,
		invoker:      NewInvoker(),
		notifier:     notifier,
		opts:         opts,
		logger:       logger.With().Str("component", "engine").Logger(),
		runningPlans: make(map[string]string),
		cancels:      make(map[string]context.CancelFunc),
		progress:     newProgressRegistry(),
	}
}

// Simulate runs the plan's transfer with --dry-run and returns the per-file
// changes and aggregate rsync reports. No execution row or log entries are
// written.
func (o *Orchestrator) Simulate(ctx context.Context, plan *model.BackupPlan) (*SimulationResult, error) {
	if !plan.HasTransport() {
		return nil, ErrMissingTransport
	}

	cmd, err := NewTransferCommand(plan, o.opts, true)
	if err != nil {
		return nil, fmt.Errorf("build transfer command: %w", err)
	}
	defer cmd.Close()

	parser := NewParser()
	changes := []FileChange{}
	var stderrTail tailBuffer

	exitCode, runErr := o.invoker.Run(ctx, cmd,
		func(line string) {
			if fc := parser.ParseLine(line); fc != nil {
				changes = append(changes, *fc)
			}
		},
		stderrTail.add,
	)
	if runErr != nil {
		return nil, fmt.Errorf("run simulation: %w", runErr)
	}

	result := &SimulationResult{Command: cmd.String(), Changes: changes, ExitCode: exitCode}
	if s, ok := parser.Stats(); ok {
		result.Stats = s
	}
	if exitCode != 0 && !isPartialTransfer(exitCode) {
		result.Error = stderrTail.join(exitSummary(exitCode))
	}
	return result, nil
}

// Execute accepts a run for the plan and returns immediately; the transfer
// itself happens in a supervised background goroutine. A plan with an open
// execution is rejected, never queued.
func (o *Orchestrator) Execute(ctx context.Context, plan *model.BackupPlan, isAutomatic bool) (*model.BackupExecution, error) {
	if !plan.HasTransport() {
		return nil, ErrMissingTransport
	}

	now := time.Now()
	exec := &model.BackupExecution{
		ID:            platform.NewID(),
		BackupPlanID:  plan.ID,
		Name:          platform.ExecutionName(now),
		StartDateTime: now,
	}

	// Reserve the plan's slot before the insert so the mutex is never held
	// across a database round trip.
	o.mu.Lock()
	if _, busy := o.runningPlans[plan.ID]; busy {
		o.mu.Unlock()
		return nil, ErrExecutionInProgress
	}
	o.runningPlans[plan.ID] = exec.ID
	o.mu.Unlock()

	// The partial unique index backstops this guard across processes.
	if err := o.store.CreateExecution(ctx, exec); err != nil {
		o.mu.Lock()
		delete(o.runningPlans, plan.ID)
		o.mu.Unlock()
		return nil, fmt.Errorf("create execution: %w", err)
	}

	// The run gets its own lifetime: it must not die with the HTTP request.
	runCtx, cancel := context.WithCancel(context.Background())
	prog := NewProgress(exec.ID)

	o.mu.Lock()
	o.cancels[exec.ID] = cancel
	o.progress.add(prog)
	o.wg.Add(1)
	o.mu.Unlock()

	executionsStarted.WithLabelValues(triggerLabel(isAutomatic)).Inc()

	go o.run(runCtx, cancel, plan, exec, prog)

	return exec, nil
}

// Cancel terminates a running execution's child process. The run then
// closes through the normal finish path and is recorded as interrupted.
func (o *Orchestrator) Cancel(executionID string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[executionID]
	o.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	cancel()
	return nil
}

// ProgressFor returns the live cursor of a running execution.
func (o *Orchestrator) ProgressFor(executionID string) (*ProgressSnapshot, bool) {
	p, ok := o.progress.get(executionID)
	if !ok {
		return nil, false
	}
	snap := p.Snapshot()
	return &snap, true
}

// Reconcile closes executions left open by a crash of a previous process.
// Called at startup, before any new execution is accepted, so that the
// status deriver never observes a permanently running execution.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	open, err := o.store.OpenExecutions(ctx)
	if err != nil {
		return fmt.Errorf("load open executions: %w", err)
	}

	for i := range open {
		exec := &open[i]
		if _, running := o.progress.get(exec.ID); running {
			continue
		}
		o.logger.Warn().
			Str("execution_id", exec.ID).
			Str("plan_id", exec.BackupPlanID).
			Msg("closing execution left open by a previous run")

		entry := &model.LogEntry{
			ExecutionID:  exec.ID,
			BackupPlanID: exec.BackupPlanID,
			FileName:     model.SentinelFinish,
			Action:       model.ActionCopyError,
			Reason:       "interrupted: service restarted during run",
		}
		if err := o.store.AppendLog(ctx, entry); err != nil {
			return fmt.Errorf("append reconcile finish for %s: %w", exec.ID, err)
		}
		if err := o.store.CloseExecution(ctx, exec.ID, time.Now()); err != nil {
			return fmt.Errorf("close stale execution %s: %w", exec.ID, err)
		}
		executionsFinished.WithLabelValues("reconciled").Inc()
	}
	return nil
}

// Shutdown cancels all running executions and waits for their finish paths.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the supervised transfer task. Every exit path, including panics,
// funnels into finalize so the execution row always closes.
func (o *Orchestrator) run(ctx context.Context, cancelRun context.CancelFunc, plan *model.BackupPlan, exec *model.BackupExecution, prog *Progress) {
	defer o.wg.Done()

	logger := o.logger.With().
		Str("plan_id", plan.ID).
		Str("execution_id", exec.ID).
		Logger()

	var finishOnce sync.Once
	finalize := func(action, reason string, stats *model.RsyncStats) {
		finishOnce.Do(func() {
			o.finish(logger, plan, exec, action, reason, stats)
		})
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("execution panicked")
			finalize(model.ActionCopyError, fmt.Sprintf("interrupted: panic during run: %v", r), nil)
		}
	}()

	cmd, err := NewTransferCommand(plan, o.opts, false)
	if err != nil {
		finalize(model.ActionCopyError, "interrupted: "+err.Error(), nil)
		return
	}
	defer cmd.Close()

	// Log writes use a background context so a canceled run still gets its
	// closing records.
	bg := context.Background()

	o.append(bg, logger, plan, exec, &model.LogEntry{
		FileName: model.SentinelCommand,
		FilePath: cmd.String(),
		Action:   model.ActionIgnored,
	})
	o.appendMilestone(bg, logger, plan, exec, model.MilestoneSourceAnalysisStarted)

	logger.Info().Str("source", plan.Source).Str("destination", plan.Destination).Msg("starting transfer")

	parser := NewParser()
	var (
		copiesStarted bool
		logWriteErr   error
		stderrTail    tailBuffer
	)

	onStdout := func(line string) {
		fc := parser.ParseLine(line)
		if fc == nil {
			return
		}
		if !copiesStarted {
			copiesStarted = true
			o.appendMilestone(bg, logger, plan, exec, model.MilestoneCopiesStarted)
		}
		index := prog.Advance(fc.Name, fc.Path)
		fileEvents.WithLabelValues(fc.Action).Inc()

		err := o.store.AppendLog(bg, &model.LogEntry{
			ExecutionID:  exec.ID,
			BackupPlanID: plan.ID,
			FileName:     fc.Name,
			FilePath:     fc.Path,
			Size:         fc.Size,
			Action:       fc.Action,
			Reason:       fc.Reason,
		})
		if err != nil && logWriteErr == nil {
			// Losing the log loses the only record of the run: abort.
			logWriteErr = err
			cancelRun()
			return
		}
		if err := o.store.UpdateProgress(bg, exec.ID, fc.Name, fc.Path, index); err != nil {
			logger.Warn().Err(err).Msg("progress update failed")
		}
	}

	exitCode, runErr := o.invoker.Run(ctx, cmd, onStdout, stderrTail.add)

	o.appendMilestone(bg, logger, plan, exec, model.MilestoneCopiesFinished)

	var stats *model.RsyncStats
	if s, ok := parser.Stats(); ok {
		stats = s
		stats.ElapsedSeconds = time.Since(exec.StartDateTime).Seconds()
		prog.SetTotal(stats.TotalFiles)
		if err := o.store.SetTotalFiles(bg, exec.ID, stats.TotalFiles); err != nil {
			logger.Warn().Err(err).Msg("set total files failed")
		}
		o.append(bg, logger, plan, exec, &model.LogEntry{
			FileName: model.SentinelStats,
			Action:   model.ActionIgnored,
			Reason:   stats.EncodeReason(),
		})
		o.append(bg, logger, plan, exec, &model.LogEntry{
			FileName: model.SentinelTransferSpeed,
			Action:   model.ActionIgnored,
			Reason:   fmt.Sprintf("%.2f bytes/sec", stats.TransferRate),
		})
	}

	action, reason := classifyFinish(ctx, exitCode, runErr, logWriteErr, &stderrTail)
	finalize(action, reason, stats)
}

// classifyFinish maps the process outcome onto the rsync-finish sentinel.
// Partial transfers keep a normal action; the status deriver's substring
// check decides how to present them.
func classifyFinish(ctx context.Context, exitCode int, runErr, logWriteErr error, stderrTail *tailBuffer) (string, string) {
	switch {
	case logWriteErr != nil:
		return model.ActionCopyError, "interrupted: log write failed: " + logWriteErr.Error()
	case runErr != nil:
		return model.ActionCopyError, "interrupted: " + runErr.Error()
	case ctx.Err() != nil:
		return model.ActionCopyError, "interrupted: canceled by operator"
	case exitCode == 0:
		return model.ActionCopy, "rsync finished successfully"
	case isPartialTransfer(exitCode):
		return model.ActionCopy, fmt.Sprintf("partial transfer: %s (code %d)", exitSummary(exitCode), exitCode)
	default:
		return model.ActionCopyError, stderrTail.join(fmt.Sprintf("%s (code %d)", exitSummary(exitCode), exitCode))
	}
}

// finish writes the finish sentinel, closes the execution, releases the
// plan lock, and notifies. It is the single exit point of every run.
func (o *Orchestrator) finish(logger zerolog.Logger, plan *model.BackupPlan, exec *model.BackupExecution, action, reason string, stats *model.RsyncStats) {
	bg := context.Background()

	o.append(bg, logger, plan, exec, &model.LogEntry{
		FileName: model.SentinelFinish,
		Action:   action,
		Reason:   reason,
	})

	endedAt := time.Now()
	if err := o.store.CloseExecution(bg, exec.ID, endedAt); err != nil {
		logger.Error().Err(err).Msg("close execution failed")
	}
	exec.EndDateTime = &endedAt

	o.mu.Lock()
	delete(o.runningPlans, plan.ID)
	delete(o.cancels, exec.ID)
	o.mu.Unlock()
	o.progress.remove(exec.ID)

	success := action != model.ActionCopyError &&
		(strings.Contains(reason, model.FinishSuccessMarker) || strings.Contains(reason, model.FinishPartialMarker))

	status := model.StatusInterrupted
	outcome := "interrupted"
	if success {
		status = model.StatusCompleted
		outcome = "completed"
	}
	executionsFinished.WithLabelValues(outcome).Inc()

	logger.Info().
		Str("status", string(status)).
		Str("reason", reason).
		Dur("duration", exec.Duration(endedAt)).
		Msg("execution finished")

	if o.notifier != nil {
		o.notifier.ExecutionFinished(bg, FinishEvent{
			Plan:      plan,
			Execution: exec,
			Status:    status,
			Success:   success,
			Reason:    reason,
			Stats:     stats,
		})
	}
}

// append writes a sentinel entry, logging failures instead of aborting:
// closing records are best-effort once the run is already ending.
func (o *Orchestrator) append(ctx context.Context, logger zerolog.Logger, plan *model.BackupPlan, exec *model.BackupExecution, entry *model.LogEntry) {
	entry.ExecutionID = exec.ID
	entry.BackupPlanID = plan.ID
	if err := o.store.AppendLog(ctx, entry); err != nil {
		logger.Error().Err(err).Str("file_name", entry.FileName).Msg("log append failed")
	}
}

func (o *Orchestrator) appendMilestone(ctx context.Context, logger zerolog.Logger, plan *model.BackupPlan, exec *model.BackupExecution, reason string) {
	o.append(ctx, logger, plan, exec, &model.LogEntry{
		FileName: "milestone",
		Action:   model.ActionMilestone,
		Reason:   reason,
	})
}

// tailBuffer keeps the last few stderr lines for failure reasons.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
}

const tailBufferSize = 5

func (t *tailBuffer) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > tailBufferSize {
		t.lines = t.lines[len(t.lines)-tailBufferSize:]
	}
}

func (t *tailBuffer) join(prefix string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(t.lines, "; ")
}
