// Agent spawning: builds batches of one kind with consecutive IDs, each
// seeded from the run seed so rosters reproduce across runs.
package agents

import (
	"fmt"

	"github.com/talgya/market-abm/internal/entropy"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	seed   int64
	nextID AgentID
}

// NewSpawner creates an agent spawner with the given run seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		seed:   seed,
		nextID: 1,
	}
}

// NextID returns the next ID the spawner would issue.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

// SetNextID sets the next agent ID to be issued.
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// SeedFor returns the random seed assigned to an agent ID.
func (s *Spawner) SeedFor(id AgentID) int64 {
	return entropy.Derive(s.seed, entropy.StreamAgents, int64(id))
}

// Spawn builds count agents with IDs starting at firstID, or at the next
// free ID when firstID is zero. The spawner does not check the range against
// IDs issued earlier; callers own uniqueness.
func (s *Spawner) Spawn(count int, firstID AgentID, build Constructor) ([]Agent, error) {
	if count < 0 {
		return nil, fmt.Errorf("spawn: negative count %d", count)
	}
	if firstID == 0 {
		firstID = s.nextID
	}

	out := make([]Agent, 0, count)
	for i := 0; i < count; i++ {
		id := firstID + AgentID(i)
		a, err := build(id, s.SeedFor(id))
		if err != nil {
			return nil, fmt.Errorf("spawn agent %d: %w", id, err)
		}
		out = append(out, a)
	}

	if next := firstID + AgentID(count); next > s.nextID {
		s.nextID = next
	}
	return out, nil
}
