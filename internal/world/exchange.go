package world

import (
	"fmt"

	"github.com/talgya/market-abm/internal/economy"
	"github.com/talgya/market-abm/internal/entropy"
)

// ExchangeParams configures the volume-pressure exchange.
type ExchangeParams struct {
	InitialPrice float64 `yaml:"initial_price"`
	Volatility   float64 `yaml:"volatility"`
	Impact       float64 `yaml:"impact"`
	PriceFloor   float64 `yaml:"price_floor"`
}

// DefaultExchangeParams returns the stock exchange configuration.
func DefaultExchangeParams() ExchangeParams {
	return ExchangeParams{
		InitialPrice: 100,
		Volatility:   0.05,
		Impact:       0.1,
	}
}

func (p ExchangeParams) Validate() error {
	if p.InitialPrice <= 0 {
		return fmt.Errorf("exchange: initial_price must be positive, got %v", p.InitialPrice)
	}
	if p.Volatility < 0 || p.Volatility >= 1 {
		return fmt.Errorf("exchange: volatility must be in [0, 1), got %v", p.Volatility)
	}
	if p.Impact < 0 {
		return fmt.Errorf("exchange: impact must be non-negative, got %v", p.Impact)
	}
	return nil
}

// Exchange moves the price by the balance of buy and sell volume plus a
// uniform shock: price *= 1 + impact*(buys-sells)/(buys+sells) + U(-vol, vol).
type Exchange struct {
	Base
	params ExchangeParams
}

// NewExchange creates an exchange environment.
func NewExchange(seed int64, p ExchangeParams) (*Exchange, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &Exchange{
		Base:   NewBase(p.InitialPrice, seed, false),
		params: p,
	}
	e.SetPriceFloor(p.PriceFloor)
	e.SetResource("buy_volume", 0)
	e.SetResource("sell_volume", 0)
	return e, nil
}

func (e *Exchange) AdvanceState() error {
	orders := e.DrainOrders()
	buys, sells := economy.Flow(orders)
	imbalance := economy.NetImbalance(orders)

	var pressure float64
	if total := buys + sells; total > 0 {
		pressure = (buys - sells) / total
	}
	shock := entropy.Uniform(e.Rand(), -e.params.Volatility, e.params.Volatility)
	price := e.Price() * (1 + pressure*e.params.Impact + shock)

	e.SetResource("buy_volume", buys)
	e.SetResource("sell_volume", sells)
	return e.CommitCycle(price, imbalance)
}

func (e *Exchange) Extras() map[string]float64 {
	return map[string]float64{
		"volatility": e.params.Volatility,
		"impact":     e.params.Impact,
	}
}
