package agents

import (
	"context"
	"fmt"
	"math"
)

// ProducerParams configures a commodity producer.
type ProducerParams struct {
	Cost        float64 `yaml:"cost"`
	Inventory   float64 `yaml:"inventory"`
	Hedge       float64 `yaml:"hedge"`
	SellMarkup  float64 `yaml:"sell_markup"`
	BuyDiscount float64 `yaml:"buy_discount"`
	Restock     float64 `yaml:"restock"`
}

// DefaultProducerParams returns the stock producer configuration.
func DefaultProducerParams() ProducerParams {
	return ProducerParams{
		Cost:        45,
		Inventory:   100,
		Hedge:       0.3,
		SellMarkup:  1.1,
		BuyDiscount: 0.95,
		Restock:     0.05,
	}
}

func (p ProducerParams) Validate() error {
	if p.Cost <= 0 {
		return fmt.Errorf("producer: cost must be positive, got %v", p.Cost)
	}
	if p.Inventory < 0 {
		return fmt.Errorf("producer: inventory must be non-negative, got %v", p.Inventory)
	}
	if p.Hedge < 0 || p.Hedge > 1 {
		return fmt.Errorf("producer: hedge must be in [0, 1], got %v", p.Hedge)
	}
	return nil
}

// Producer sells a hedge fraction of inventory when the price clears its
// cost by the markup, and restocks when the price falls under the discount.
type Producer struct {
	Base
	cost        float64
	inventory   float64
	hedge       float64
	sellMarkup  float64
	buyDiscount float64
	restock     float64
	pending     float64
}

// NewProducer creates a producer.
func NewProducer(id AgentID, p ProducerParams) (*Producer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Producer{
		Base:        NewBase(id, "producer"),
		cost:        p.Cost,
		inventory:   p.Inventory,
		hedge:       p.Hedge,
		sellMarkup:  p.SellMarkup,
		buyDiscount: p.BuyDiscount,
		restock:     p.Restock,
	}, nil
}

func (p *Producer) Decide(ctx context.Context, w World) error {
	p.pending = 0
	price := w.Price()
	switch {
	case price > p.sellMarkup*p.cost && p.inventory > 0:
		p.pending = -math.Min(p.inventory*p.hedge, p.inventory)
	case price < p.buyDiscount*p.cost:
		p.pending = math.Max(1, p.inventory*p.restock)
	}
	return nil
}

func (p *Producer) Act(ctx context.Context, w World) error {
	if p.pending == 0 {
		return nil
	}
	p.inventory += p.pending
	w.SubmitOrder(p.ID(), p.pending)
	p.pending = 0
	return nil
}

func (p *Producer) State() State {
	s := p.Base.State()
	s["inventory"] = p.inventory
	s["cost"] = p.cost
	return s
}
