package world

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/market-abm/internal/economy"
	"github.com/talgya/market-abm/internal/entropy"
)

// AgroParams configures the seasonal commodity market.
type AgroParams struct {
	InitialPrice float64 `yaml:"initial_price"`
	SeasonalAmp  float64 `yaml:"seasonal_amp"`
	Period       int     `yaml:"period"`
	K            float64 `yaml:"k"`
	Depth        float64 `yaml:"depth"`
	Noise        float64 `yaml:"noise"`
	WeatherAmp   float64 `yaml:"weather_amp"`
	WeatherFreq  float64 `yaml:"weather_freq"`
	PriceFloor   float64 `yaml:"price_floor"`
}

// DefaultAgroParams returns the stock commodity configuration.
func DefaultAgroParams() AgroParams {
	return AgroParams{
		InitialPrice: 50,
		SeasonalAmp:  0.10,
		Period:       252,
		K:            0.015,
		Depth:        200,
		Noise:        0.003,
		WeatherAmp:   0.002,
		WeatherFreq:  0.05,
	}
}

func (p AgroParams) Validate() error {
	if p.InitialPrice <= 0 {
		return fmt.Errorf("agro: initial_price must be positive, got %v", p.InitialPrice)
	}
	if p.Period <= 0 {
		return fmt.Errorf("agro: period must be positive, got %d", p.Period)
	}
	if p.Noise < 0 || p.WeatherAmp < 0 {
		return fmt.Errorf("agro: noise and weather_amp must be non-negative")
	}
	return nil
}

// Agro moves the log price by order impact, a sinusoidal season, a smooth
// weather shock and Gaussian noise.
type Agro struct {
	Base
	params  AgroParams
	weather opensimplex.Noise
}

// NewAgro creates a commodity environment.
func NewAgro(seed int64, p AgroParams) (*Agro, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	a := &Agro{
		Base:    NewBase(p.InitialPrice, seed, false),
		params:  p,
		weather: opensimplex.NewNormalized(entropy.Derive(seed, entropy.StreamWeather, 0)),
	}
	a.SetPriceFloor(p.PriceFloor)
	a.SetResource("seasonal", 0)
	a.SetResource("weather", 0)
	return a, nil
}

// Seasonal returns the seasonal log-price component for a cycle.
func (a *Agro) Seasonal(cycle int) float64 {
	phase := float64(cycle%a.params.Period) / float64(a.params.Period)
	return a.params.SeasonalAmp * math.Sin(2*math.Pi*phase)
}

// Weather returns the weather log-price component for a cycle, in
// [-weather_amp, weather_amp].
func (a *Agro) Weather(cycle int) float64 {
	if a.params.WeatherAmp == 0 {
		return 0
	}
	v := octaveNoise(a.weather, float64(cycle), 2, a.params.WeatherFreq, 0.5)
	return a.params.WeatherAmp * (2*v - 1)
}

func (a *Agro) AdvanceState() error {
	cycle := a.Cycle()
	imbalance := economy.NetImbalance(a.DrainOrders())
	seasonal, weather := a.Seasonal(cycle), a.Weather(cycle)
	step := economy.Impact(imbalance, a.params.K, a.params.Depth) +
		seasonal + weather +
		entropy.Gauss(a.Rand(), 0, a.params.Noise)

	a.SetResource("seasonal", seasonal)
	a.SetResource("weather", weather)
	return a.CommitCycle(a.Price()*math.Exp(step), imbalance)
}

func (a *Agro) Extras() map[string]float64 {
	return map[string]float64{
		"seasonal_amp": a.params.SeasonalAmp,
		"k":            a.params.K,
		"weather_amp":  a.params.WeatherAmp,
	}
}

// octaveNoise layers normalized simplex noise along one axis, halving the
// amplitude and doubling the frequency per octave. The result stays in [0, 1].
func octaveNoise(noise opensimplex.Noise, x float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, 0) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
