package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB defines the database operations used by the services.
// *pgxpool.Pool satisfies this interface.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Services bundles the persistence services wired into the API server.
type Services struct {
	Agent     *AgentService
	Plan      *PlanService
	Execution *ExecutionService
	Log       *LogService
}

func NewServices(db DB) *Services {
	return &Services{
		Agent:     NewAgentService(db),
		Plan:      NewPlanService(db),
		Execution: NewExecutionService(db),
		Log:       NewLogService(db),
	}
}
