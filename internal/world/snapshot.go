package world

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/talgya/market-abm/internal/agents"
)

// Snapshot is an immutable per-cycle record. Cycle is the environment's
// cycle counter at capture time, so the first snapshot of a run has cycle 1.
type Snapshot struct {
	Cycle       int                `json:"cycle"`
	WorldState  map[string]float64 `json:"world_state"`
	AgentStates []agents.State     `json:"agent_states"`
}

func writeSnapshots(path string, snaps []Snapshot) error {
	if snaps == nil {
		snaps = []Snapshot{}
	}
	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshots: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshots: %w", err)
	}
	return nil
}

// ReadSnapshots loads a snapshot history written by ExportResults.
// Numeric agent fields decode as float64.
func ReadSnapshots(path string) ([]Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	var snaps []Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, fmt.Errorf("failed to decode snapshots: %w", err)
	}
	return snaps, nil
}
