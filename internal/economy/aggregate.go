package economy

import (
	"cmp"
	"slices"
)

// sortOrders puts orders in canonical (agent id, quantity) order. Summing
// in this order makes the reduction independent of submission order, so
// sequential and parallel runs agree bit for bit.
func sortOrders(orders []Order) {
	slices.SortFunc(orders, func(a, b Order) int {
		if c := cmp.Compare(a.AgentID, b.AgentID); c != 0 {
			return c
		}
		return cmp.Compare(a.Quantity, b.Quantity)
	})
}

func canonical(orders []Order) []Order {
	sorted := slices.Clone(orders)
	sortOrders(sorted)
	return sorted
}

// NetImbalance returns the sum of order quantities. Empty input yields
// exactly 0.
func NetImbalance(orders []Order) float64 {
	var sum float64
	for _, o := range canonical(orders) {
		sum += o.Quantity
	}
	return sum
}

// Flow returns gross buy volume and gross sell volume, both non-negative.
func Flow(orders []Order) (buys, sells float64) {
	for _, o := range canonical(orders) {
		if o.Quantity > 0 {
			buys += o.Quantity
		} else {
			sells -= o.Quantity
		}
	}
	return buys, sells
}
