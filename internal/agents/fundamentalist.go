package agents

import (
	"context"
	"fmt"
	"math"
)

// FundamentalistParams configures a value trader.
type FundamentalistParams struct {
	Cash       float64 `yaml:"cash"`
	Position   float64 `yaml:"position"`
	Value      float64 `yaml:"value"`
	Tolerance  float64 `yaml:"tolerance"`
	Proportion float64 `yaml:"proportion"`
}

// DefaultFundamentalistParams returns the stock value-trader configuration.
func DefaultFundamentalistParams() FundamentalistParams {
	return FundamentalistParams{
		Cash:       2000,
		Value:      110,
		Tolerance:  0.03,
		Proportion: 0.15,
	}
}

func (p FundamentalistParams) Validate() error {
	if p.Value <= 0 {
		return fmt.Errorf("fundamentalist: value must be positive, got %v", p.Value)
	}
	if p.Tolerance < 0 {
		return fmt.Errorf("fundamentalist: tolerance must be non-negative, got %v", p.Tolerance)
	}
	if p.Proportion <= 0 || p.Proportion > 1 {
		return fmt.Errorf("fundamentalist: proportion must be in (0, 1], got %v", p.Proportion)
	}
	if p.Cash < 0 || p.Position < 0 {
		return fmt.Errorf("fundamentalist: cash and position must be non-negative")
	}
	return nil
}

// Fundamentalist buys when the price sits below its intrinsic value by more
// than the tolerance and sells when it sits above.
type Fundamentalist struct {
	Base
	acct       Account
	value      float64
	tolerance  float64
	proportion float64
	pending    float64
}

// NewFundamentalist creates a value trader.
func NewFundamentalist(id AgentID, p FundamentalistParams) (*Fundamentalist, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Fundamentalist{
		Base:       NewBase(id, "fundamentalist"),
		acct:       NewAccount(p.Cash, p.Position),
		value:      p.Value,
		tolerance:  p.Tolerance,
		proportion: p.Proportion,
	}, nil
}

func (f *Fundamentalist) Decide(ctx context.Context, w World) error {
	f.pending = 0
	price := w.Price()
	gap := (f.value - price) / f.value
	cash, pos := f.acct.Cash(), f.acct.Position()

	switch {
	case gap > f.tolerance && cash > 0:
		qty := math.Max(1, f.proportion*cash/price)
		if f.acct.CanAfford(qty, price) {
			f.pending = qty
		}
	case gap < -f.tolerance && pos > 0:
		f.pending = -math.Min(pos, math.Max(1, f.proportion*pos))
	}
	return nil
}

func (f *Fundamentalist) Act(ctx context.Context, w World) error {
	price := w.Price()
	switch {
	case f.pending > 0:
		if f.acct.Buy(f.pending, price) {
			w.SubmitOrder(f.ID(), f.pending)
		}
	case f.pending < 0:
		if sold := f.acct.Sell(-f.pending, price); sold > 0 {
			w.SubmitOrder(f.ID(), -sold)
		}
	}
	f.pending = 0
	return nil
}

// ReceiveDividend credits the per-unit dividend on the units held.
func (f *Fundamentalist) ReceiveDividend(perUnit float64) {
	f.acct.PayDividend(perUnit)
}

func (f *Fundamentalist) State() State {
	s := f.Base.State()
	s["cash"] = f.acct.Cash()
	s["position"] = f.acct.Position()
	s["value"] = f.value
	return s
}
