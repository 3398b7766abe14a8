package world

import (
	"fmt"
	"math"

	"github.com/talgya/market-abm/internal/economy"
	"github.com/talgya/market-abm/internal/entropy"
)

// GeneralParams configures the general log-price market.
type GeneralParams struct {
	InitialPrice  float64 `yaml:"initial_price"`
	Drift         float64 `yaml:"drift"`
	MeanReversion float64 `yaml:"mean_reversion"`
	Depth         float64 `yaml:"depth"`
	ImpactGain    float64 `yaml:"impact_gain"`
	Noise         float64 `yaml:"noise"`
	EMAAlpha      float64 `yaml:"ema_alpha"`
	PriceFloor    float64 `yaml:"price_floor"`
}

// DefaultGeneralParams returns the stock general-market configuration.
func DefaultGeneralParams() GeneralParams {
	return GeneralParams{
		InitialPrice:  100,
		Drift:         0.0002,
		MeanReversion: 0.02,
		Depth:         300,
		ImpactGain:    0.02,
		Noise:         0.003,
		EMAAlpha:      0.02,
	}
}

func (p GeneralParams) Validate() error {
	if p.InitialPrice <= 0 {
		return fmt.Errorf("general: initial_price must be positive, got %v", p.InitialPrice)
	}
	if p.Noise < 0 {
		return fmt.Errorf("general: noise must be non-negative, got %v", p.Noise)
	}
	if p.EMAAlpha < 0 || p.EMAAlpha > 1 {
		return fmt.Errorf("general: ema_alpha must be in [0, 1], got %v", p.EMAAlpha)
	}
	return nil
}

// General steps the log price by drift, reversion toward an exponential
// moving average, depth-scaled order impact and Gaussian noise.
type General struct {
	Base
	params GeneralParams
	ema    float64
}

// NewGeneral creates a general market environment.
func NewGeneral(seed int64, p GeneralParams) (*General, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	g := &General{
		Base:   NewBase(p.InitialPrice, seed, false),
		params: p,
		ema:    p.InitialPrice,
	}
	g.SetPriceFloor(p.PriceFloor)
	g.SetResource("ema", g.ema)
	return g, nil
}

func (g *General) AdvanceState() error {
	price := g.Price()
	g.ema = (1-g.params.EMAAlpha)*g.ema + g.params.EMAAlpha*price

	imbalance := economy.NetImbalance(g.DrainOrders())
	reversion := g.params.MeanReversion * (g.ema - price) / math.Max(1e-9, g.ema)
	step := g.params.Drift +
		reversion +
		economy.Impact(imbalance, g.params.ImpactGain, g.params.Depth) +
		entropy.Gauss(g.Rand(), 0, g.params.Noise)

	g.SetResource("ema", g.ema)
	return g.CommitCycle(price*math.Exp(step), imbalance)
}

func (g *General) Extras() map[string]float64 {
	return map[string]float64{
		"drift":          g.params.Drift,
		"mean_reversion": g.params.MeanReversion,
		"depth":          g.params.Depth,
	}
}
