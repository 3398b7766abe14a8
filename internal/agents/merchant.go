package agents

import (
	"context"
	"fmt"
	"math"
)

// MerchantParams configures a stock-keeping merchant.
type MerchantParams struct {
	Cash      float64 `yaml:"cash"`
	Target    float64 `yaml:"target"`
	Replenish float64 `yaml:"replenish"`
}

// DefaultMerchantParams returns the stock merchant configuration.
func DefaultMerchantParams() MerchantParams {
	return MerchantParams{Cash: 10000, Target: 200, Replenish: 0.1}
}

func (p MerchantParams) Validate() error {
	if p.Cash < 0 {
		return fmt.Errorf("merchant: cash must be non-negative, got %v", p.Cash)
	}
	if p.Target < 0 {
		return fmt.Errorf("merchant: target must be non-negative, got %v", p.Target)
	}
	if p.Replenish < 0 || p.Replenish > 1 {
		return fmt.Errorf("merchant: replenish must be in [0, 1], got %v", p.Replenish)
	}
	return nil
}

// Merchant closes a fraction of the gap between its stock and a target each
// cycle, buying below target and selling above it.
type Merchant struct {
	Base
	acct      Account
	target    float64
	replenish float64
	pending   float64
}

// NewMerchant creates a merchant with no initial stock.
func NewMerchant(id AgentID, p MerchantParams) (*Merchant, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Merchant{
		Base:      NewBase(id, "merchant"),
		acct:      NewAccount(p.Cash, 0),
		target:    p.Target,
		replenish: p.Replenish,
	}, nil
}

func (m *Merchant) Decide(ctx context.Context, w World) error {
	m.pending = 0
	q := m.replenish * (m.target - m.acct.Position())
	switch {
	case q > 0:
		if m.acct.CanAfford(q, w.Price()) {
			m.pending = q
		}
	case q < 0:
		if math.Abs(q) <= m.acct.Position() {
			m.pending = q
		}
	}
	return nil
}

func (m *Merchant) Act(ctx context.Context, w World) error {
	price := w.Price()
	switch {
	case m.pending > 0:
		if m.acct.Buy(m.pending, price) {
			w.SubmitOrder(m.ID(), m.pending)
		}
	case m.pending < 0:
		if sold := m.acct.Sell(-m.pending, price); sold > 0 {
			w.SubmitOrder(m.ID(), -sold)
		}
	}
	m.pending = 0
	return nil
}

func (m *Merchant) State() State {
	s := m.Base.State()
	s["cash"] = m.acct.Cash()
	s["stock"] = m.acct.Position()
	return s
}
