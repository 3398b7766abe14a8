package metrics

import (
	"encoding/json"
	"math"
	"testing"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBasicShortSeries(t *testing.T) {
	for _, prices := range [][]float64{nil, {100}} {
		r := Basic(prices)
		if len(r) != 1 || r["n"] != float64(len(prices)) {
			t.Errorf("expected only n for %v, got %v", prices, r)
		}
	}
}

func TestBasic(t *testing.T) {
	r := Basic([]float64{100, 110, 99})
	if r["n"] != 3 {
		t.Errorf("n = %v", r["n"])
	}
	if !near(r["mean_return"], 0) {
		t.Errorf("mean_return = %v", r["mean_return"])
	}
	if !near(r["daily_vol"], math.Sqrt(0.02)) {
		t.Errorf("daily_vol = %v, want %v", r["daily_vol"], math.Sqrt(0.02))
	}
	if !near(r["cumulative_return"], -0.01) {
		t.Errorf("cumulative_return = %v", r["cumulative_return"])
	}
}

func TestStylizedAlternatingSeries(t *testing.T) {
	prices := []float64{100}
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			prices = append(prices, prices[len(prices)-1]*1.02)
		} else {
			prices = append(prices, prices[len(prices)-1]/1.02)
		}
	}
	r := Stylized(prices)
	if r["acf_r_1"] >= -0.9 {
		t.Errorf("expected strongly negative lag-1 autocorrelation, got %v", r["acf_r_1"])
	}
	if !near(r["log_mean"], 0) {
		t.Errorf("log_mean = %v", r["log_mean"])
	}
	if r["log_sd"] <= 0 {
		t.Errorf("log_sd = %v", r["log_sd"])
	}
}

func TestConstantSeriesOmitsUndefined(t *testing.T) {
	prices := []float64{50, 50, 50, 50, 50}
	r := Summarize(prices, nil)
	for _, k := range []string{"skewness", "excess_kurtosis", "acf_r_1"} {
		if _, ok := r[k]; ok {
			t.Errorf("%s should be omitted for a constant series, got %v", k, r[k])
		}
	}
	if _, err := json.Marshal(r); err != nil {
		t.Fatalf("report not encodable: %v", err)
	}
}

func TestSummarizeKeepsComputedOverExtras(t *testing.T) {
	r := Summarize([]float64{100, 101, 102, 101}, map[string]float64{"n": 99, "depth": 300})
	if r["n"] != 4 {
		t.Errorf("extras overrode n: %v", r["n"])
	}
	if r["depth"] != 300 {
		t.Errorf("extra missing: %v", r)
	}
}

func TestLogReturns(t *testing.T) {
	got := LogReturns([]float64{100, 100 * math.E})
	if len(got) != 1 || !near(got[0], 1) {
		t.Errorf("got %v", got)
	}
	if LogReturns([]float64{1}) != nil {
		t.Error("expected nil for a single price")
	}
}
