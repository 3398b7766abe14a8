package world

import (
	"fmt"
	"log/slog"
	"maps"
	"math/rand"
	"slices"

	"github.com/talgya/market-abm/internal/agents"
	"github.com/talgya/market-abm/internal/economy"
	"github.com/talgya/market-abm/internal/entropy"
)

// Base implements everything in Environment except the model transition.
// Models embed it and supply AdvanceState and Extras.
type Base struct {
	roster    []agents.Agent
	orders    *economy.OrderBuffer
	resources map[string]float64
	cycle     int
	price     float64
	floor     float64
	history   History
	snapshots []Snapshot
	rng       *rand.Rand
}

// NewBase creates a base environment. The generator is derived from seed
// and is the only random source the model may use. When seedHistory is set
// the initial price is the first history entry.
func NewBase(initialPrice float64, seed int64, seedHistory bool) Base {
	b := Base{
		orders:    &economy.OrderBuffer{},
		resources: map[string]float64{"price": initialPrice},
		price:     initialPrice,
		snapshots: []Snapshot{},
		rng:       entropy.New(entropy.Derive(seed, entropy.StreamEnvironment, 0)),
	}
	if seedHistory {
		b.history.Prices = append(b.history.Prices, initialPrice)
	}
	return b
}

// SetPriceFloor makes the price guard clamp to floor instead of failing.
func (b *Base) SetPriceFloor(floor float64) {
	b.floor = floor
}

// Rand returns the environment's generator.
func (b *Base) Rand() *rand.Rand {
	return b.rng
}

func (b *Base) Cycle() int {
	return b.cycle
}

func (b *Base) Price() float64 {
	return b.price
}

func (b *Base) PriceHistory() []float64 {
	return b.history.Prices
}

// SubmitOrder buffers an order for the current cycle. Zero, NaN and
// infinite quantities are dropped.
func (b *Base) SubmitOrder(id agents.AgentID, quantity float64) {
	b.orders.Submit(economy.Order{AgentID: id, Quantity: quantity})
}

// AddAgent appends to the roster. Duplicate IDs are not rejected.
func (b *Base) AddAgent(a agents.Agent) {
	b.roster = append(b.roster, a)
}

func (b *Base) Agents() []agents.Agent {
	return b.roster
}

// Resource returns a named resource value.
func (b *Base) Resource(name string) float64 {
	return b.resources[name]
}

// SetResource sets a named resource value.
func (b *Base) SetResource(name string, v float64) {
	b.resources[name] = v
}

// DrainOrders returns this cycle's orders in canonical order and empties
// the buffer.
func (b *Base) DrainOrders() []economy.Order {
	return b.orders.Drain()
}

func (b *Base) DiscardOrders() {
	if n := b.orders.Len(); n > 0 {
		slog.Debug("orders discarded", "cycle", b.cycle, "count", n)
	}
	b.orders.Reset()
}

// AdvanceState is the abstract transition.
func (b *Base) AdvanceState() error {
	return fmt.Errorf("%w: advance state", ErrNotImplemented)
}

// CommitCycle closes a transition: it guards the new price, appends the
// price and imbalance histories, clears the buffer and increments the cycle.
// Nothing is recorded when the guard fails.
func (b *Base) CommitCycle(price, imbalance float64) error {
	guarded, err := economy.GuardPrice(price, b.floor)
	if err != nil {
		return fmt.Errorf("cycle %d: %w", b.cycle, err)
	}
	b.price = guarded
	b.resources["price"] = guarded
	b.history.Prices = append(b.history.Prices, guarded)
	b.history.Imbalance = append(b.history.Imbalance, imbalance)
	b.orders.Reset()
	b.cycle++
	return nil
}

// RecordDividend appends to the dividend series.
func (b *Base) RecordDividend(perUnit float64) {
	b.history.Dividends = append(b.history.Dividends, perUnit)
}

func (b *Base) CollectSnapshot() Snapshot {
	states := make([]agents.State, 0, len(b.roster))
	for _, a := range b.roster {
		states = append(states, a.State())
	}
	snap := Snapshot{
		Cycle:       b.cycle,
		WorldState:  maps.Clone(b.resources),
		AgentStates: states,
	}
	b.snapshots = append(b.snapshots, snap)
	return snap
}

// Snapshots returns a copy of the snapshot history.
func (b *Base) Snapshots() []Snapshot {
	return slices.Clone(b.snapshots)
}

// ExportResults writes the snapshot history as an indented JSON array.
func (b *Base) ExportResults(path string) error {
	return writeSnapshots(path, b.snapshots)
}

// History returns a copy of the series recorded so far.
func (b *Base) History() History {
	return History{
		Prices:    slices.Clone(b.history.Prices),
		Imbalance: slices.Clone(b.history.Imbalance),
		Dividends: slices.Clone(b.history.Dividends),
	}
}

func (b *Base) Extras() map[string]float64 {
	return nil
}
