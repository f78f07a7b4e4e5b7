package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/model"
)

type fakePlanSource struct {
	mu    sync.Mutex
	plans []model.BackupPlan
}

func (f *fakePlanSource) ListActive(context.Context) ([]model.BackupPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.BackupPlan(nil), f.plans...), nil
}

func (f *fakePlanSource) GetByID(_ context.Context, id string) (*model.BackupPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.plans {
		if f.plans[i].ID == id {
			p := f.plans[i]
			return &p, nil
		}
	}
	return nil, errors.New("plan not found")
}

func (f *fakePlanSource) set(plans ...model.BackupPlan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = plans
}

type fakeRunner struct {
	mu   sync.Mutex
	runs []model.BackupPlan
}

func (f *fakeRunner) Execute(_ context.Context, plan *model.BackupPlan, isAutomatic bool) (*model.BackupExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *plan)
	return &model.BackupExecution{ID: "exec-" + plan.ID, BackupPlanID: plan.ID}, nil
}

func plan(id, schedule string) model.BackupPlan {
	return model.BackupPlan{ID: id, Name: id, Schedule: schedule, Active: true}
}

func TestRefreshRegistersActivePlans(t *testing.T) {
	src := &fakePlanSource{}
	src.set(plan("plan-1", "0 2 * * *"), plan("plan-2", "30 * * * *"))

	s := New(src, &fakeRunner{}, zerolog.Nop())
	require.NoError(t, s.Refresh(context.Background()))

	assert.Len(t, s.entries, 2)
	assert.Equal(t, "0 2 * * *", s.specs["plan-1"])
}

func TestRefreshSkipsUnscheduledAndInvalid(t *testing.T) {
	src := &fakePlanSource{}
	src.set(plan("plan-1", ""), plan("plan-2", "not a cron line"))

	s := New(src, &fakeRunner{}, zerolog.Nop())
	require.NoError(t, s.Refresh(context.Background()))

	assert.Empty(t, s.entries)
}

func TestRefreshDropsRemovedPlans(t *testing.T) {
	src := &fakePlanSource{}
	src.set(plan("plan-1", "0 2 * * *"), plan("plan-2", "30 * * * *"))

	s := New(src, &fakeRunner{}, zerolog.Nop())
	require.NoError(t, s.Refresh(context.Background()))
	require.Len(t, s.entries, 2)

	src.set(plan("plan-1", "0 2 * * *"))
	require.NoError(t, s.Refresh(context.Background()))

	assert.Len(t, s.entries, 1)
	_, gone := s.entries["plan-2"]
	assert.False(t, gone)
}

func TestRefreshReregistersChangedSchedule(t *testing.T) {
	src := &fakePlanSource{}
	src.set(plan("plan-1", "0 2 * * *"))

	s := New(src, &fakeRunner{}, zerolog.Nop())
	require.NoError(t, s.Refresh(context.Background()))
	first := s.entries["plan-1"]

	src.set(plan("plan-1", "15 3 * * *"))
	require.NoError(t, s.Refresh(context.Background()))

	assert.NotEqual(t, first, s.entries["plan-1"])
	assert.Equal(t, "15 3 * * *", s.specs["plan-1"])
}

func TestTriggerUsesCurrentPlan(t *testing.T) {
	src := &fakePlanSource{}
	edited := plan("plan-1", "0 2 * * *")
	edited.Source = "/srv/old"
	src.set(edited)

	runner := &fakeRunner{}
	s := New(src, runner, zerolog.Nop())
	require.NoError(t, s.Refresh(context.Background()))

	// Edit everything but the schedule, then refresh. The entry is not
	// re-registered, but the next fire must still see the new values.
	edited.Source = "/srv/new"
	edited.PrivateKey = "rotated"
	src.set(edited)
	require.NoError(t, s.Refresh(context.Background()))

	s.cron.Entry(s.entries["plan-1"]).Job.Run()

	require.Len(t, runner.runs, 1)
	assert.Equal(t, "/srv/new", runner.runs[0].Source)
	assert.Equal(t, "rotated", runner.runs[0].PrivateKey)
}

func TestTriggerSkipsDeactivatedPlan(t *testing.T) {
	src := &fakePlanSource{}
	p := plan("plan-1", "0 2 * * *")
	src.set(p)

	runner := &fakeRunner{}
	s := New(src, runner, zerolog.Nop())
	require.NoError(t, s.Refresh(context.Background()))

	p.Active = false
	src.set(p)

	s.cron.Entry(s.entries["plan-1"]).Job.Run()
	assert.Empty(t, runner.runs)
}

func TestTriggerSkipsDeletedPlan(t *testing.T) {
	src := &fakePlanSource{}
	src.set(plan("plan-1", "0 2 * * *"))

	runner := &fakeRunner{}
	s := New(src, runner, zerolog.Nop())
	require.NoError(t, s.Refresh(context.Background()))

	job := s.cron.Entry(s.entries["plan-1"]).Job
	src.set()
	job.Run()

	assert.Empty(t, runner.runs)
}

func TestRefreshIsIdempotent(t *testing.T) {
	src := &fakePlanSource{}
	src.set(plan("plan-1", "0 2 * * *"))

	s := New(src, &fakeRunner{}, zerolog.Nop())
	require.NoError(t, s.Refresh(context.Background()))
	id := s.entries["plan-1"]

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, id, s.entries["plan-1"])
}
