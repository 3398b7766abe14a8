package agents

import (
	"context"
	"fmt"
)

type action uint8

const (
	actionHold action = iota
	actionBuy
	actionSell
)

func (a action) String() string {
	switch a {
	case actionBuy:
		return "buy"
	case actionSell:
		return "sell"
	default:
		return "hold"
	}
}

// MomentumParams configures a momentum trader.
type MomentumParams struct {
	Cash float64 `yaml:"cash"`
	Lot  float64 `yaml:"lot"`
}

// DefaultMomentumParams returns the stock momentum configuration.
func DefaultMomentumParams() MomentumParams {
	return MomentumParams{Cash: 1000, Lot: 1}
}

func (p MomentumParams) Validate() error {
	if p.Cash < 0 {
		return fmt.Errorf("momentum: cash must be non-negative, got %v", p.Cash)
	}
	if p.Lot <= 0 {
		return fmt.Errorf("momentum: lot must be positive, got %v", p.Lot)
	}
	return nil
}

// Momentum buys a fixed lot when the price rose over the last cycle and
// sells one when it fell.
type Momentum struct {
	Base
	acct   Account
	lot    float64
	action action
}

// NewMomentum creates a momentum trader.
func NewMomentum(id AgentID, p MomentumParams) (*Momentum, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Momentum{
		Base: NewBase(id, "momentum"),
		acct: NewAccount(p.Cash, 0),
		lot:  p.Lot,
	}, nil
}

func (m *Momentum) Decide(ctx context.Context, w World) error {
	m.action = actionHold
	hist := w.PriceHistory()
	if len(hist) < 2 {
		return nil
	}
	price, prev := w.Price(), hist[len(hist)-2]
	switch {
	case price > prev && m.acct.CanAfford(m.lot, price):
		m.action = actionBuy
	case price < prev && m.acct.Position() > 0:
		m.action = actionSell
	}
	return nil
}

func (m *Momentum) Act(ctx context.Context, w World) error {
	price := w.Price()
	switch m.action {
	case actionBuy:
		if m.acct.Buy(m.lot, price) {
			w.SubmitOrder(m.ID(), m.lot)
		}
	case actionSell:
		if sold := m.acct.Sell(m.lot, price); sold > 0 {
			w.SubmitOrder(m.ID(), -sold)
		}
	}
	return nil
}

func (m *Momentum) State() State {
	s := m.Base.State()
	s["cash"] = m.acct.Cash()
	s["position"] = m.acct.Position()
	s["last_action"] = m.action.String()
	return s
}
