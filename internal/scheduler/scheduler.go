package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/engine"
	"github.com/edvin/backhaul/internal/model"
)

// PlanSource provides the plans the scheduler keeps entries for. Triggers
// re-read the plan at fire time, so the source must serve current rows.
type PlanSource interface {
	ListActive(ctx context.Context) ([]model.BackupPlan, error)
	GetByID(ctx context.Context, id string) (*model.BackupPlan, error)
}

// Runner starts executions for due plans.
type Runner interface {
	Execute(ctx context.Context, plan *model.BackupPlan, isAutomatic bool) (*model.BackupExecution, error)
}

// Scheduler fires plan executions on their cron expressions. Entries are
// rebuilt from the database by Refresh, so edits to a plan's schedule take
// effect on the next refresh tick without a restart.
type Scheduler struct {
	plans  PlanSource
	runner Runner
	logger zerolog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID // plan ID -> entry
	specs   map[string]string       // plan ID -> schedule it was registered with
}

func New(plans PlanSource, runner Runner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		plans:   plans,
		runner:  runner,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
	}
}

// Start loads the initial entries and begins firing. It keeps the entry set
// in sync with the database until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context, refreshInterval time.Duration) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	s.cron.Start()

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(ctx); err != nil {
					s.logger.Error().Err(err).Msg("schedule refresh failed")
				}
			}
		}
	}()
	return nil
}

// Stop halts the cron loop and waits for in-flight trigger callbacks. The
// executions those callbacks started keep running in the engine.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Refresh reconciles cron entries against the active plans: new or changed
// schedules are (re)registered, deactivated or deleted plans are dropped.
func (s *Scheduler) Refresh(ctx context.Context) error {
	plans, err := s.plans.ListActive(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(plans))
	for i := range plans {
		plan := plans[i]
		if plan.Schedule == "" {
			continue
		}
		seen[plan.ID] = true

		if s.specs[plan.ID] == plan.Schedule {
			continue
		}
		if id, ok := s.entries[plan.ID]; ok {
			s.cron.Remove(id)
		}

		id, err := s.cron.AddFunc(plan.Schedule, s.trigger(plan.ID))
		if err != nil {
			s.logger.Error().Err(err).
				Str("plan_id", plan.ID).
				Str("schedule", plan.Schedule).
				Msg("invalid schedule, plan not registered")
			delete(s.entries, plan.ID)
			delete(s.specs, plan.ID)
			continue
		}
		s.entries[plan.ID] = id
		s.specs[plan.ID] = plan.Schedule
		s.logger.Info().Str("plan_id", plan.ID).Str("schedule", plan.Schedule).Msg("plan scheduled")
	}

	for planID, id := range s.entries {
		if !seen[planID] {
			s.cron.Remove(id)
			delete(s.entries, planID)
			delete(s.specs, planID)
			s.logger.Info().Str("plan_id", planID).Msg("plan unscheduled")
		}
	}
	return nil
}

// trigger fires one scheduled run. The plan is re-read at fire time so edits
// made between refreshes (source, destination, rotated credentials) apply to
// the run even when the schedule itself never changed. A plan already mid-run
// is skipped, not queued.
func (s *Scheduler) trigger(planID string) func() {
	return func() {
		ctx := context.Background()

		plan, err := s.plans.GetByID(ctx, planID)
		if err != nil {
			s.logger.Error().Err(err).Str("plan_id", planID).Msg("scheduled plan could not be loaded")
			return
		}
		if !plan.Active {
			s.logger.Warn().Str("plan_id", planID).Msg("scheduled run skipped, plan deactivated")
			return
		}

		exec, err := s.runner.Execute(ctx, plan, true)
		switch {
		case err == nil:
			s.logger.Info().
				Str("plan_id", plan.ID).
				Str("execution_id", exec.ID).
				Msg("scheduled execution started")
		case errors.Is(err, engine.ErrExecutionInProgress):
			s.logger.Warn().Str("plan_id", plan.ID).Msg("scheduled run skipped, previous execution still open")
		default:
			s.logger.Error().Err(err).Str("plan_id", plan.ID).Msg("scheduled execution failed to start")
		}
	}
}
