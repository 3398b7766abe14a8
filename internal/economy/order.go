// Package economy provides order capture and the aggregation that turns a
// cycle's orders into the imbalance signal driving price transitions.
package economy

import (
	"math"

	"github.com/talgya/market-abm/internal/agents"
)

// Order is a signed quantity submitted by an agent during a cycle.
// Positive quantities are buys, negative quantities are sells.
type Order struct {
	AgentID  agents.AgentID `json:"agent_id"`
	Quantity float64        `json:"quantity"`
}

// Valid reports whether the order carries a usable quantity.
// Zero, NaN and infinite quantities are no-ops.
func (o Order) Valid() bool {
	return o.Quantity != 0 && !math.IsNaN(o.Quantity) && !math.IsInf(o.Quantity, 0)
}
