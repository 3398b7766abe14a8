// Package agents provides the agent contract, the base agent, and the trading
// strategies that plug into market environments.
package agents

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// AgentID is a unique identifier for an agent. Callers own uniqueness.
type AgentID uint64

// ErrNotImplemented is returned when the base agent's Decide or Act is
// invoked without a concrete override.
var ErrNotImplemented = errors.New("agents: method not implemented")

// World is the view of an environment that agents read and submit orders to.
// During a cycle the only state written concurrently is the order buffer
// behind SubmitOrder; everything else is stable until the barrier.
type World interface {
	Cycle() int
	Price() float64
	// PriceHistory is read-only; callers must not modify the returned slice.
	PriceHistory() []float64
	SubmitOrder(id AgentID, quantity float64)
}

// Agent is one autonomous participant. Decide and Act run as a single unit
// of work per cycle, possibly concurrently with other agents, so an agent
// mutates only its own state plus whatever World exposes.
type Agent interface {
	ID() AgentID
	Decide(ctx context.Context, w World) error
	Act(ctx context.Context, w World) error
	// State returns a fresh map describing the agent, used for snapshots.
	State() State
}

// State is a per-agent snapshot record.
type State map[string]any

// DividendReceiver is implemented by agents paid a per-unit dividend by
// environments that distribute one.
type DividendReceiver interface {
	ReceiveDividend(perUnit float64)
}

// Constructor builds an agent for an ID. The seed is derived from the run
// seed and the ID, for agents that own a random source.
type Constructor func(id AgentID, seed int64) (Agent, error)

// Base carries identity and a free-form resource map. Its Decide and Act
// return ErrNotImplemented; concrete agents embed it and override both.
type Base struct {
	id        AgentID
	Kind      string
	Resources map[string]float64
}

// NewBase creates a base agent with an empty resource map.
func NewBase(id AgentID, kind string) Base {
	return Base{
		id:        id,
		Kind:      kind,
		Resources: make(map[string]float64),
	}
}

// ID returns the agent's identifier.
func (b *Base) ID() AgentID {
	return b.id
}

// Decide is the abstract decision step.
func (b *Base) Decide(ctx context.Context, w World) error {
	return fmt.Errorf("%w: decide on agent %d", ErrNotImplemented, b.id)
}

// Act is the abstract action step.
func (b *Base) Act(ctx context.Context, w World) error {
	return fmt.Errorf("%w: act on agent %d", ErrNotImplemented, b.id)
}

// State returns the identity fields and a copy of the resource map.
func (b *Base) State() State {
	s := make(State, len(b.Resources)+2)
	s["id"] = b.id
	if b.Kind != "" {
		s["kind"] = b.Kind
	}
	for k, v := range maps.All(b.Resources) {
		s[k] = v
	}
	return s
}
