package core

import (
	"context"
	"time"

	"github.com/edvin/backhaul/internal/model"
)

// EngineStore adapts the execution and log services to the persistence
// interface the engine orchestrator runs against.
type EngineStore struct {
	Executions *ExecutionService
	Logs       *LogService
}

func NewEngineStore(s *Services) *EngineStore {
	return &EngineStore{Executions: s.Execution, Logs: s.Log}
}

func (es *EngineStore) CreateExecution(ctx context.Context, exec *model.BackupExecution) error {
	return es.Executions.Create(ctx, exec)
}

func (es *EngineStore) CloseExecution(ctx context.Context, executionID string, endedAt time.Time) error {
	return es.Executions.Close(ctx, executionID, endedAt)
}

func (es *EngineStore) UpdateProgress(ctx context.Context, executionID, fileName, filePath string, index int64) error {
	return es.Executions.UpdateProgress(ctx, executionID, fileName, filePath, index)
}

func (es *EngineStore) SetTotalFiles(ctx context.Context, executionID string, total int64) error {
	return es.Executions.SetTotalFiles(ctx, executionID, total)
}

func (es *EngineStore) AppendLog(ctx context.Context, entry *model.LogEntry) error {
	return es.Logs.Append(ctx, entry)
}

func (es *EngineStore) OpenExecutions(ctx context.Context) ([]model.BackupExecution, error) {
	return es.Executions.Open(ctx)
}
