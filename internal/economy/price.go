package economy

import (
	"errors"
	"fmt"
	"math"
)

// ErrStateInvariant is returned when a transition produces a price that
// cannot be carried forward.
var ErrStateInvariant = errors.New("economy: state invariant violated")

// GuardPrice validates a post-transition price. NaN and infinite prices are
// always rejected. A non-positive price is clamped to floor when floor is
// positive and rejected otherwise.
func GuardPrice(price, floor float64) (float64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: price %v", ErrStateInvariant, price)
	}
	if floor > 0 && price < floor {
		return floor, nil
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %v", ErrStateInvariant, price)
	}
	return price, nil
}

// Impact scales an imbalance by market depth. Depth below 1 is treated as 1.
func Impact(imbalance, gain, depth float64) float64 {
	return gain * imbalance / math.Max(1, depth)
}
