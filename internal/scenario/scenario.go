// Package scenario registers every environment and agent kind and turns a
// run configuration into a populated environment.
package scenario

import (
	"fmt"
	"log/slog"

	"github.com/talgya/market-abm/internal/agents"
	"github.com/talgya/market-abm/internal/config"
	"github.com/talgya/market-abm/internal/registry"
	"github.com/talgya/market-abm/internal/world"
)

// Catalog holds the environment and agent registries.
type Catalog struct {
	Environments *registry.Registry[world.Constructor]
	Agents       *registry.Registry[agents.Constructor]
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		Environments: registry.New[world.Constructor]("environment"),
		Agents:       registry.New[agents.Constructor]("agent"),
	}
}

// Defaults returns a catalog with every built-in kind registered.
func Defaults() *Catalog {
	c := NewCatalog()

	c.Environments.MustRegister("exchange", environment(world.DefaultExchangeParams, world.NewExchange))
	c.Environments.MustRegister("general", environment(world.DefaultGeneralParams, world.NewGeneral))
	c.Environments.MustRegister("reit", environment(world.DefaultREITParams, world.NewREIT))
	c.Environments.MustRegister("agro", environment(world.DefaultAgroParams, world.NewAgro))

	c.Agents.MustRegister("momentum", agentKind(agents.DefaultMomentumParams, unseeded(agents.NewMomentum)))
	c.Agents.MustRegister("trend", agentKind(agents.DefaultSignalParams, unseeded(agents.NewTrend)))
	c.Agents.MustRegister("contrarian", agentKind(agents.DefaultSignalParams, unseeded(agents.NewContrarian)))
	c.Agents.MustRegister("fundamentalist", agentKind(agents.DefaultFundamentalistParams, unseeded(agents.NewFundamentalist)))
	c.Agents.MustRegister("noise", agentKind(agents.DefaultNoiseParams, agents.NewNoise))
	c.Agents.MustRegister("producer", agentKind(agents.DefaultProducerParams, unseeded(agents.NewProducer)))
	c.Agents.MustRegister("merchant", agentKind(agents.DefaultMerchantParams, unseeded(agents.NewMerchant)))

	return c
}

type validator interface {
	Validate() error
}

// environment adapts a model constructor into a factory that decodes params
// onto the model's defaults and validates them before any seed is known.
func environment[P validator, E world.Environment](defaults func() P, build func(int64, P) (E, error)) registry.Factory[world.Constructor] {
	return func(params registry.Params) (world.Constructor, error) {
		p := defaults()
		if err := params.Decode(&p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return func(seed int64) (world.Environment, error) {
			env, err := build(seed, p)
			if err != nil {
				return nil, err
			}
			return env, nil
		}, nil
	}
}

func agentKind[P validator, A agents.Agent](defaults func() P, build func(agents.AgentID, int64, P) (A, error)) registry.Factory[agents.Constructor] {
	return func(params registry.Params) (agents.Constructor, error) {
		p := defaults()
		if err := params.Decode(&p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return func(id agents.AgentID, seed int64) (agents.Agent, error) {
			a, err := build(id, seed, p)
			if err != nil {
				return nil, err
			}
			return a, nil
		}, nil
	}
}

// unseeded adapts a constructor for an agent with no random source.
func unseeded[P any, A agents.Agent](build func(agents.AgentID, P) (A, error)) func(agents.AgentID, int64, P) (A, error) {
	return func(id agents.AgentID, _ int64, p P) (A, error) {
		return build(id, p)
	}
}

// Build creates the configured environment and spawns every investor group
// into it. Agent seeds derive from cfg.Seed and the agent ID.
func (c *Catalog) Build(cfg *config.Config) (world.Environment, error) {
	newEnv, err := c.Environments.New(cfg.Environment.Kind, cfg.Environment.Params)
	if err != nil {
		return nil, err
	}
	env, err := newEnv(cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("environment %q: %w", cfg.Environment.Kind, err)
	}

	spawner := agents.NewSpawner(cfg.Seed)
	for i, g := range cfg.Investors {
		build, err := c.Agents.New(g.Kind, g.Params)
		if err != nil {
			return nil, fmt.Errorf("investors[%d]: %w", i, err)
		}
		batch, err := spawner.Spawn(g.Count, agents.AgentID(g.FirstID), build)
		if err != nil {
			return nil, fmt.Errorf("investors[%d]: %w", i, err)
		}
		for _, a := range batch {
			env.AddAgent(a)
		}
		slog.Debug("investors spawned", "kind", g.Kind, "count", g.Count, "next_id", spawner.NextID())
	}
	return env, nil
}

// Build uses the default catalog.
func Build(cfg *config.Config) (world.Environment, error) {
	return Defaults().Build(cfg)
}
