// Package world provides the market environments agents trade against:
// the environment contract, a shared base, per-cycle snapshots, and the
// exchange, general, REIT and agro price models.
package world

import (
	"errors"

	"github.com/talgya/market-abm/internal/agents"
)

// ErrNotImplemented is returned when the base environment's transition is
// invoked without a concrete model.
var ErrNotImplemented = errors.New("world: method not implemented")

// Environment owns the roster, the per-cycle order buffer, resource state,
// the cycle counter and the snapshot history.
//
// SubmitOrder is the only method safe to call concurrently. AddAgent runs
// before a simulation starts; the remaining methods run on the driver after
// the barrier.
type Environment interface {
	agents.World

	AddAgent(a agents.Agent)
	Agents() []agents.Agent

	// AdvanceState reduces the buffered orders, applies the model transition,
	// appends to the histories, clears the buffer and increments the cycle.
	AdvanceState() error
	// CollectSnapshot captures post-transition state and appends it to the
	// snapshot history.
	CollectSnapshot() Snapshot
	Snapshots() []Snapshot
	ExportResults(path string) error

	// DiscardOrders drops the current buffer without a transition, for a
	// cycle that is abandoned.
	DiscardOrders()
	History() History
	// Extras reports model parameters alongside the run's metrics.
	Extras() map[string]float64
}

// History holds the append-only series a model produces.
type History struct {
	Prices    []float64 `json:"prices"`
	Imbalance []float64 `json:"imbalance"`
	Dividends []float64 `json:"dividends,omitempty"`
}

// Constructor builds an environment from the run seed.
type Constructor func(seed int64) (Environment, error)
