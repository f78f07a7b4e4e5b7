package platform

import (
	"time"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.New().String()
}

// ExecutionName derives the human name of an execution from its start time.
func ExecutionName(start time.Time) string {
	return start.UTC().Format("2006-01-02 15:04:05")
}
