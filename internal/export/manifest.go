package export

import (
	"time"

	"github.com/google/uuid"

	"github.com/talgya/market-abm/internal/engine"
)

// Manifest describes one run. A run that aborted still gets a manifest,
// with Error set and Partial telling whether a partial history was kept.
type Manifest struct {
	RunID           string    `json:"run_id"`
	Name            string    `json:"name"`
	Seed            int64     `json:"seed"`
	Environment     string    `json:"environment"`
	Agents          int       `json:"agents"`
	Cycles          int       `json:"cycles"`
	CompletedCycles int       `json:"completed_cycles"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	ResultsPath     string    `json:"results_path,omitempty"`
	Partial         bool      `json:"partial"`
	Failures        []Failure `json:"failures,omitempty"`
	Error           string    `json:"error,omitempty"`
	Config          any       `json:"config,omitempty"`
}

// Failure is the serialized form of an isolated or fatal task failure.
type Failure struct {
	Cycle   int    `json:"cycle"`
	AgentID uint64 `json:"agent_id"`
	Phase   string `json:"phase,omitempty"`
	Error   string `json:"error"`
}

// NewManifest starts a manifest with a fresh run ID.
func NewManifest(started time.Time) *Manifest {
	return &Manifest{
		RunID:     uuid.New().String(),
		StartedAt: started,
	}
}

// Finish records the driver's result and, for an aborted run, its error.
func (m *Manifest) Finish(res *engine.Result, runErr error) {
	if res != nil {
		m.CompletedCycles = res.Cycles
		m.DurationSeconds = res.Duration.Seconds()
		m.ResultsPath = res.ResultsPath
		m.Partial = res.Partial
		m.Failures = Failures(res.Failures)
	}
	if runErr != nil {
		m.Error = runErr.Error()
	}
}

// Failures converts task failures for serialization.
func Failures(fs []engine.TaskFailure) []Failure {
	if len(fs) == 0 {
		return nil
	}
	out := make([]Failure, 0, len(fs))
	for _, f := range fs {
		out = append(out, Failure{
			Cycle:   f.Cycle,
			AgentID: uint64(f.AgentID),
			Phase:   f.Phase,
			Error:   f.Err.Error(),
		})
	}
	return out
}
