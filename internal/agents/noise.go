package agents

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/talgya/market-abm/internal/entropy"
)

// NoiseParams configures a noise trader.
type NoiseParams struct {
	Cash     float64 `yaml:"cash"`
	Position float64 `yaml:"position"`
	MaxLot   float64 `yaml:"max_lot"`
	BuyProb  float64 `yaml:"buy_prob"`
}

// DefaultNoiseParams returns the stock noise-trader configuration.
func DefaultNoiseParams() NoiseParams {
	return NoiseParams{Cash: 1000, MaxLot: 4, BuyProb: 0.55}
}

func (p NoiseParams) Validate() error {
	if p.BuyProb < 0 || p.BuyProb > 1 {
		return fmt.Errorf("noise: buy_prob must be in [0, 1], got %v", p.BuyProb)
	}
	if p.MaxLot < 0 {
		return fmt.Errorf("noise: max_lot must be non-negative, got %v", p.MaxLot)
	}
	if p.Cash < 0 || p.Position < 0 {
		return fmt.Errorf("noise: cash and position must be non-negative")
	}
	return nil
}

// Noise trades a random lot on a random side each cycle, skipping trades its
// ledger cannot cover. It draws from its own generator so concurrent dispatch
// does not change its sequence.
type Noise struct {
	Base
	acct    Account
	rng     *rand.Rand
	maxLot  float64
	buyProb float64
	pending float64
}

// NewNoise creates a noise trader seeded with seed.
func NewNoise(id AgentID, seed int64, p NoiseParams) (*Noise, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Noise{
		Base:    NewBase(id, "noise"),
		acct:    NewAccount(p.Cash, p.Position),
		rng:     entropy.New(seed),
		maxLot:  p.MaxLot,
		buyProb: p.BuyProb,
	}, nil
}

func (n *Noise) Decide(ctx context.Context, w World) error {
	side := -1.0
	if n.rng.Float64() < n.buyProb {
		side = 1
	}
	n.pending = side * entropy.Uniform(n.rng, 0, n.maxLot)
	return nil
}

func (n *Noise) Act(ctx context.Context, w World) error {
	qty, price := n.pending, w.Price()
	n.pending = 0
	switch {
	case qty > 0:
		if !n.acct.Buy(qty, price) {
			return nil
		}
	case qty < 0:
		if -qty > n.acct.Position() {
			return nil
		}
		n.acct.Sell(-qty, price)
	default:
		return nil
	}
	w.SubmitOrder(n.ID(), qty)
	return nil
}

// ReceiveDividend credits the per-unit dividend on the units held.
func (n *Noise) ReceiveDividend(perUnit float64) {
	n.acct.PayDividend(perUnit)
}

func (n *Noise) State() State {
	s := n.Base.State()
	s["cash"] = n.acct.Cash()
	s["position"] = n.acct.Position()
	return s
}
