package world

import (
	"fmt"
	"math"

	"github.com/talgya/market-abm/internal/agents"
	"github.com/talgya/market-abm/internal/economy"
	"github.com/talgya/market-abm/internal/entropy"
)

// REITParams configures the real-estate fund market.
type REITParams struct {
	InitialPrice  float64 `yaml:"initial_price"`
	CyclesPerYear int     `yaml:"cycles_per_year"`
	K             float64 `yaml:"k"`
	Depth         float64 `yaml:"depth"`
	Noise         float64 `yaml:"noise"`
	Yield         float64 `yaml:"yield"`
	PriceFloor    float64 `yaml:"price_floor"`
}

// DefaultREITParams returns the stock fund configuration.
func DefaultREITParams() REITParams {
	return REITParams{
		InitialPrice:  100,
		CyclesPerYear: 252,
		K:             0.02,
		Depth:         250,
		Noise:         0.002,
		Yield:         0.10,
	}
}

func (p REITParams) Validate() error {
	if p.InitialPrice <= 0 {
		return fmt.Errorf("reit: initial_price must be positive, got %v", p.InitialPrice)
	}
	if p.CyclesPerYear <= 0 {
		return fmt.Errorf("reit: cycles_per_year must be positive, got %d", p.CyclesPerYear)
	}
	if p.Noise < 0 || p.Yield < 0 {
		return fmt.Errorf("reit: noise and yield must be non-negative")
	}
	return nil
}

// REIT moves the price by depth-scaled order impact and Gaussian noise, then
// pays a per-unit dividend of price*yield/cycles_per_year to every agent
// that accepts one. The price history is seeded with the initial price.
type REIT struct {
	Base
	params REITParams
}

// NewREIT creates a fund environment.
func NewREIT(seed int64, p REITParams) (*REIT, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := &REIT{
		Base:   NewBase(p.InitialPrice, seed, true),
		params: p,
	}
	r.SetPriceFloor(p.PriceFloor)
	r.SetResource("dividend", 0)
	return r, nil
}

func (r *REIT) AdvanceState() error {
	imbalance := economy.NetImbalance(r.DrainOrders())
	step := economy.Impact(imbalance, r.params.K, r.params.Depth) +
		entropy.Gauss(r.Rand(), 0, r.params.Noise)
	if err := r.CommitCycle(r.Price()*math.Exp(step), imbalance); err != nil {
		return err
	}

	d := r.Price() * r.params.Yield / float64(r.params.CyclesPerYear)
	for _, a := range r.Agents() {
		if recv, ok := a.(agents.DividendReceiver); ok {
			recv.ReceiveDividend(d)
		}
	}
	r.RecordDividend(d)
	r.SetResource("dividend", d)
	return nil
}

func (r *REIT) Extras() map[string]float64 {
	return map[string]float64{
		"yield": r.params.Yield,
		"k":     r.params.K,
		"depth": r.params.Depth,
	}
}
