package economy

import (
	"log/slog"
	"sync"
)

// OrderBuffer accumulates one cycle's orders. Submit is safe for concurrent
// use by agents dispatched in parallel; everything else runs at the barrier.
type OrderBuffer struct {
	mu      sync.Mutex
	orders  []Order
	dropped int
}

// Submit appends a valid order and reports whether it was accepted.
// Invalid orders are counted and discarded.
func (b *OrderBuffer) Submit(o Order) bool {
	if !o.Valid() {
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		slog.Debug("order dropped", "agent", o.AgentID, "quantity", o.Quantity)
		return false
	}
	b.mu.Lock()
	b.orders = append(b.orders, o)
	b.mu.Unlock()
	return true
}

// Drain returns the buffered orders in canonical order and empties the buffer.
func (b *OrderBuffer) Drain() []Order {
	b.mu.Lock()
	orders := b.orders
	b.orders = nil
	b.mu.Unlock()
	sortOrders(orders)
	return orders
}

// Reset discards buffered orders without returning them.
func (b *OrderBuffer) Reset() {
	b.mu.Lock()
	b.orders = nil
	b.mu.Unlock()
}

// Len returns the number of buffered orders.
func (b *OrderBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

// Dropped returns how many invalid orders have been discarded since creation.
func (b *OrderBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
