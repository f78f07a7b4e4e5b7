package engine

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/model"
)

type fakeStore struct {
	mu      sync.Mutex
	execs   map[string]*model.BackupExecution
	entries []model.LogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{execs: make(map[string]*model.BackupExecution)}
}

func (s *fakeStore) CreateExecution(_ context.Context, exec *model.BackupExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exec
	s.execs[exec.ID] = &cp
	return nil
}

func (s *fakeStore) CloseExecution(_ context.Context, id string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.execs[id]; ok && e.EndDateTime == nil {
		e.EndDateTime = &endedAt
	}
	return nil
}

func (s *fakeStore) UpdateProgress(_ context.Context, id, fileName, filePath string, index int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.execs[id]; ok {
		e.CurrentFileName = &fileName
		e.CurrentFilePath = &filePath
		e.CurrentFileIndex = index
	}
	return nil
}

func (s *fakeStore) SetTotalFiles(_ context.Context, id string, total int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.execs[id]; ok && e.TotalFilesToProcess == nil {
		e.TotalFilesToProcess = &total
	}
	return nil
}

func (s *fakeStore) AppendLog(_ context.Context, entry *model.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *fakeStore) OpenExecutions(_ context.Context) ([]model.BackupExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []model.BackupExecution
	for _, e := range s.execs {
		if e.EndDateTime == nil {
			open = append(open, *e)
		}
	}
	return open, nil
}

func (s *fakeStore) execution(t *testing.T, id string) model.BackupExecution {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[id]
	require.True(t, ok, "execution %s not found", id)
	return *e
}

func (s *fakeStore) closed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[id]
	return ok && e.EndDateTime != nil
}

func (s *fakeStore) log(id string) []model.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LogEntry
	for _, e := range s.entries {
		if e.ExecutionID == id {
			out = append(out, e)
		}
	}
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []FinishEvent
}

func (n *fakeNotifier) ExecutionFinished(_ context.Context, event FinishEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) last(t *testing.T) FinishEvent {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.events)
	return n.events[len(n.events)-1]
}

// scripted replaces the real rsync invocation with a shell script.
func scripted(t *testing.T, store Store, notifier Notifier, script string) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(store, notifier, Options{KeyDir: t.TempDir()}, zerolog.Nop())
	o.invoker.cmdFactory = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	return o
}

func waitClosed(t *testing.T, store *fakeStore, id string) {
	t.Helper()
	require.Eventually(t, func() bool { return store.closed(id) },
		10*time.Second, 10*time.Millisecond, "execution never closed")
}

const successScript = `
echo '>f+++++++++|docs/report.pdf|52428'
echo '>f.st......|notes.txt|1024'
echo '*deleting  |old/stale.bin|2048'
echo 'Number of files: 3 (reg: 2, dir: 1)'
echo 'Number of regular files transferred: 2'
echo 'Total bytes sent: 53,700'
echo 'sent 53,700 bytes  received 85 bytes  35,856.67 bytes/sec'
echo 'total size is 55,500  speedup is 1.03'
exit 0
`

func TestExecuteSuccess(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	o := scripted(t, store, notifier, successScript)

	exec, err := o.Execute(context.Background(), testPlan(), false)
	require.NoError(t, err)
	require.NotEmpty(t, exec.ID)
	waitClosed(t, store, exec.ID)

	entries := store.log(exec.ID)
	require.NotEmpty(t, entries)

	// The command sentinel opens the log, the finish sentinel closes it.
	assert.Equal(t, model.KindCommand, entries[0].Kind())
	assert.Contains(t, entries[0].FilePath, "backup@web-01.internal:/etc/")
	last := entries[len(entries)-1]
	assert.Equal(t, model.KindFinish, last.Kind())
	assert.Equal(t, model.ActionCopy, last.Action)
	assert.Equal(t, "rsync finished successfully", last.Reason)

	// Milestones bracket the per-file records.
	var order []string
	for _, e := range entries {
		switch e.Kind() {
		case model.KindMilestone:
			order = append(order, e.Reason)
		case model.KindFileChange:
			order = append(order, "file:"+e.FileName)
		}
	}
	assert.Equal(t, []string{
		model.MilestoneSourceAnalysisStarted,
		model.MilestoneCopiesStarted,
		"file:report.pdf",
		"file:notes.txt",
		"file:stale.bin",
		model.MilestoneCopiesFinished,
	}, order)

	// Stats sentinels are recorded and the totals persisted.
	var kinds []model.EntryKind
	for _, e := range entries {
		kinds = append(kinds, e.Kind())
	}
	assert.Contains(t, kinds, model.KindStats)
	assert.Contains(t, kinds, model.KindTransferSpeed)

	final := store.execution(t, exec.ID)
	require.NotNil(t, final.TotalFilesToProcess)
	assert.Equal(t, int64(3), *final.TotalFilesToProcess)
	assert.Equal(t, int64(3), final.CurrentFileIndex)

	assert.Equal(t, model.StatusCompleted, DeriveStatus(&final, entries))

	event := notifier.last(t)
	assert.True(t, event.Success)
	assert.Equal(t, model.StatusCompleted, event.Status)
	require.NotNil(t, event.Stats)
	assert.Equal(t, int64(3), event.Stats.TotalFiles)

	// Live cursor is gone once the run closed.
	_, live := o.ProgressFor(exec.ID)
	assert.False(t, live)
}

func TestExecuteMissingTransport(t *testing.T) {
	store := newFakeStore()
	o := scripted(t, store, &fakeNotifier{}, "exit 0")

	plan := testPlan()
	plan.PrivateKey = ""

	_, err := o.Execute(context.Background(), plan, false)
	assert.ErrorIs(t, err, ErrMissingTransport)
	assert.Empty(t, store.execs)
}

func TestExecuteRejectsConcurrentRun(t *testing.T) {
	store := newFakeStore()
	o := scripted(t, store, &fakeNotifier{}, "sleep 30")

	plan := testPlan()
	exec, err := o.Execute(context.Background(), plan, false)
	require.NoError(t, err)

	_, err = o.Execute(context.Background(), plan, false)
	assert.ErrorIs(t, err, ErrExecutionInProgress)

	require.NoError(t, o.Cancel(exec.ID))
	waitClosed(t, store, exec.ID)

	// After the first run closes, the plan accepts work again.
	exec2, err := o.Execute(context.Background(), plan, false)
	require.NoError(t, err)
	require.NoError(t, o.Cancel(exec2.ID))
	waitClosed(t, store, exec2.ID)
}

// hookedStore lets a test intercept execution inserts.
type hookedStore struct {
	*fakeStore
	onCreate func(*model.BackupExecution) error
}

func (s *hookedStore) CreateExecution(ctx context.Context, exec *model.BackupExecution) error {
	if s.onCreate != nil {
		if err := s.onCreate(exec); err != nil {
			return err
		}
	}
	return s.fakeStore.CreateExecution(ctx, exec)
}

func TestExecuteSlowInsertDoesNotBlockOtherPlans(t *testing.T) {
	slowPlan := testPlan()
	slowPlan.ID = "plan-slow"
	fastPlan := testPlan()
	fastPlan.ID = "plan-fast"

	inserting := make(chan struct{})
	release := make(chan struct{})
	store := &hookedStore{fakeStore: newFakeStore()}
	store.onCreate = func(exec *model.BackupExecution) error {
		if exec.BackupPlanID == slowPlan.ID {
			close(inserting)
			<-release
		}
		return nil
	}

	o := scripted(t, store, &fakeNotifier{}, "exit 0")

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, err := o.Execute(context.Background(), slowPlan, false)
		assert.NoError(t, err)
	}()
	<-inserting

	// While plan-slow sits in its insert, another plan must still be accepted.
	fastDone := make(chan string)
	go func() {
		exec, err := o.Execute(context.Background(), fastPlan, false)
		assert.NoError(t, err)
		fastDone <- exec.ID
	}()

	var fastID string
	select {
	case fastID = <-fastDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute for another plan blocked behind a slow insert")
	}

	close(release)
	<-slowDone
	waitClosed(t, store.fakeStore, fastID)
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		for _, e := range store.execs {
			if e.EndDateTime == nil {
				return false
			}
		}
		return len(store.execs) == 2
	}, 10*time.Second, 10*time.Millisecond)
}

func TestExecuteFailedInsertReleasesPlan(t *testing.T) {
	store := &hookedStore{fakeStore: newFakeStore()}
	failed := false
	store.onCreate = func(*model.BackupExecution) error {
		if !failed {
			failed = true
			return errors.New("connection refused")
		}
		return nil
	}

	o := scripted(t, store, &fakeNotifier{}, "exit 0")
	plan := testPlan()

	_, err := o.Execute(context.Background(), plan, false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExecutionInProgress)

	// The slot is free again, not wedged by the failed insert.
	exec, err := o.Execute(context.Background(), plan, false)
	require.NoError(t, err)
	waitClosed(t, store.fakeStore, exec.ID)
}

func TestCancelMarksInterrupted(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	o := scripted(t, store, notifier, "sleep 30")

	exec, err := o.Execute(context.Background(), testPlan(), false)
	require.NoError(t, err)
	require.NoError(t, o.Cancel(exec.ID))
	waitClosed(t, store, exec.ID)

	entries := store.log(exec.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, model.KindFinish, last.Kind())
	assert.Equal(t, model.ActionCopyError, last.Action)
	assert.Contains(t, last.Reason, "canceled")

	final := store.execution(t, exec.ID)
	assert.Equal(t, model.StatusInterrupted, DeriveStatus(&final, entries))
	assert.False(t, notifier.last(t).Success)
}

func TestCancelUnknownExecution(t *testing.T) {
	o := scripted(t, newFakeStore(), &fakeNotifier{}, "exit 0")
	assert.ErrorIs(t, o.Cancel("nope"), ErrNotRunning)
}

func TestPartialTransferCompletes(t *testing.T) {
	store := newFakeStore()
	o := scripted(t, store, &fakeNotifier{}, "exit 24")

	exec, err := o.Execute(context.Background(), testPlan(), false)
	require.NoError(t, err)
	waitClosed(t, store, exec.ID)

	entries := store.log(exec.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, model.ActionCopy, last.Action)
	assert.Contains(t, last.Reason, "partial transfer")

	final := store.execution(t, exec.ID)
	assert.Equal(t, model.StatusCompleted, DeriveStatus(&final, entries))
}

func TestRsyncFailureInterrupts(t *testing.T) {
	store := newFakeStore()
	o := scripted(t, store, &fakeNotifier{},
		`echo 'rsync: connection unexpectedly closed' >&2; exit 12`)

	exec, err := o.Execute(context.Background(), testPlan(), false)
	require.NoError(t, err)
	waitClosed(t, store, exec.ID)

	entries := store.log(exec.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, model.ActionCopyError, last.Action)
	assert.Contains(t, last.Reason, "error in rsync protocol data stream")
	assert.Contains(t, last.Reason, "connection unexpectedly closed")

	final := store.execution(t, exec.ID)
	assert.Equal(t, model.StatusInterrupted, DeriveStatus(&final, entries))
}

func TestSimulatePersistsNothing(t *testing.T) {
	store := newFakeStore()
	o := scripted(t, store, &fakeNotifier{}, successScript)

	result, err := o.Simulate(context.Background(), testPlan())
	require.NoError(t, err)

	assert.Len(t, result.Changes, 3)
	assert.Equal(t, 0, result.ExitCode)
	assert.Empty(t, result.Error)
	require.NotNil(t, result.Stats)
	assert.Equal(t, int64(3), result.Stats.TotalFiles)

	assert.Empty(t, store.execs)
	assert.Empty(t, store.entries)
}

func TestSimulateMissingTransport(t *testing.T) {
	o := scripted(t, newFakeStore(), &fakeNotifier{}, "exit 0")

	plan := testPlan()
	plan.Host = ""
	_, err := o.Simulate(context.Background(), plan)
	assert.ErrorIs(t, err, ErrMissingTransport)
}

func TestReconcileClosesStaleExecutions(t *testing.T) {
	store := newFakeStore()
	stale := &model.BackupExecution{
		ID:            "stale-1",
		BackupPlanID:  "plan-1",
		Name:          "2025-03-01 02:00:00",
		StartDateTime: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.CreateExecution(context.Background(), stale))

	o := scripted(t, store, &fakeNotifier{}, "exit 0")
	require.NoError(t, o.Reconcile(context.Background()))

	assert.True(t, store.closed("stale-1"))

	entries := store.log("stale-1")
	require.Len(t, entries, 1)
	assert.Equal(t, model.KindFinish, entries[0].Kind())
	assert.Equal(t, model.ActionCopyError, entries[0].Action)
	assert.Contains(t, entries[0].Reason, "service restarted")

	final := store.execution(t, "stale-1")
	assert.Equal(t, model.StatusInterrupted, DeriveStatus(&final, entries))
}

func TestShutdownStopsRunningExecutions(t *testing.T) {
	store := newFakeStore()
	o := scripted(t, store, &fakeNotifier{}, "sleep 30")

	exec, err := o.Execute(context.Background(), testPlan(), false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	assert.True(t, store.closed(exec.ID))
}
