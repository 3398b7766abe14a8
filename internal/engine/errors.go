package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/market-abm/internal/agents"
)

var (
	// ErrTaskTimeout is the cause of a TaskFailure whose agent overran the
	// per-task deadline.
	ErrTaskTimeout = errors.New("engine: agent task timed out")
	// ErrAgentPanic is the cause of a TaskFailure whose agent panicked.
	ErrAgentPanic = errors.New("engine: agent panicked")
	// ErrAlreadyRun is returned when Run is called on an engine that has
	// already started.
	ErrAlreadyRun = errors.New("engine: already run")
)

// TaskFailure records an agent whose decide or act step failed.
type TaskFailure struct {
	Cycle   int
	AgentID agents.AgentID
	Phase   string // "decide" or "act"
	Err     error
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("cycle %d: agent %d %s: %v", f.Cycle, f.AgentID, f.Phase, f.Err)
}

func (f *TaskFailure) Unwrap() error {
	return f.Err
}
