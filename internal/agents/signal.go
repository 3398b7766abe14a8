package agents

import (
	"context"
	"fmt"
	"math"
)

// SignalParams configures trend and contrarian traders.
type SignalParams struct {
	Cash     float64 `yaml:"cash"`
	Position float64 `yaml:"position"`
	K        float64 `yaml:"k"`
}

// DefaultSignalParams returns the stock signal-trader configuration.
func DefaultSignalParams() SignalParams {
	return SignalParams{Cash: 5000, K: 0.1}
}

func (p SignalParams) Validate() error {
	if p.Cash < 0 || p.Position < 0 {
		return fmt.Errorf("signal trader: cash and position must be non-negative")
	}
	if p.K < 0 {
		return fmt.Errorf("signal trader: k must be non-negative, got %v", p.K)
	}
	return nil
}

// SignalTrader sizes orders from the one-cycle return it last observed.
// A trend follower trades with the return, a contrarian against it.
type SignalTrader struct {
	Base
	acct    Account
	k       float64
	sign    float64
	last    float64
	pending float64
}

// NewTrend creates a trend follower.
func NewTrend(id AgentID, p SignalParams) (*SignalTrader, error) {
	return newSignalTrader(id, "trend", 1, p)
}

// NewContrarian creates a contrarian trader.
func NewContrarian(id AgentID, p SignalParams) (*SignalTrader, error) {
	return newSignalTrader(id, "contrarian", -1, p)
}

func newSignalTrader(id AgentID, kind string, sign float64, p SignalParams) (*SignalTrader, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &SignalTrader{
		Base: NewBase(id, kind),
		acct: NewAccount(p.Cash, p.Position),
		k:    p.K,
		sign: sign,
	}, nil
}

// Decide records the first observed price without trading.
func (a *SignalTrader) Decide(ctx context.Context, w World) error {
	a.pending = 0
	price := w.Price()
	if a.last == 0 {
		a.last = price
		return nil
	}
	s := a.sign * a.k * (price/a.last - 1)
	a.last = price

	cash, pos := a.acct.Cash(), a.acct.Position()
	switch {
	case s > 0 && cash > 0:
		qty := math.Max(1, s*cash/price)
		if a.acct.CanAfford(qty, price) {
			a.pending = qty
		}
	case s < 0 && pos > 0:
		a.pending = -math.Min(pos, math.Max(1, -s*pos))
	}
	return nil
}

func (a *SignalTrader) Act(ctx context.Context, w World) error {
	price := w.Price()
	switch {
	case a.pending > 0:
		if a.acct.Buy(a.pending, price) {
			w.SubmitOrder(a.ID(), a.pending)
		}
	case a.pending < 0:
		if sold := a.acct.Sell(-a.pending, price); sold > 0 {
			w.SubmitOrder(a.ID(), -sold)
		}
	}
	a.pending = 0
	return nil
}

func (a *SignalTrader) State() State {
	s := a.Base.State()
	s["cash"] = a.acct.Cash()
	s["position"] = a.acct.Position()
	return s
}
