// Package metrics computes summary statistics over a price series.
package metrics

import (
	"maps"
	"math"

	"github.com/grd/stat"
)

// Report is a flat metric set keyed by name, the shape written to
// metrics.json. Series too short for a statistic omit its key.
type Report map[string]float64

// Basic returns simple-return metrics: the number of prices, mean one-cycle
// return, its sample standard deviation, and the cumulative return.
func Basic(prices []float64) Report {
	r := Report{"n": float64(len(prices))}
	if len(prices) < 2 {
		return r
	}
	rets := make(stat.Float64Slice, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		rets = append(rets, prices[i]/prices[i-1]-1)
	}
	r["mean_return"] = stat.Mean(rets)
	if len(rets) > 1 {
		r["daily_vol"] = stat.Sd(rets)
	} else {
		r["daily_vol"] = 0
	}
	r["cumulative_return"] = prices[len(prices)-1]/prices[0] - 1
	return r.sanitize()
}

// Stylized returns stylized facts of log returns: mean, sample standard
// deviation, skewness, excess kurtosis, and the lag-1 autocorrelation of
// the returns and of their absolute values.
func Stylized(prices []float64) Report {
	r := Report{"n": float64(len(prices))}
	if len(prices) < 3 {
		return r
	}
	logs := LogReturns(prices)
	abs := make(stat.Float64Slice, len(logs))
	for i, v := range logs {
		abs[i] = math.Abs(v)
	}

	r["log_mean"] = stat.Mean(logs)
	r["log_sd"] = stat.Sd(logs)
	r["skewness"] = stat.Skew(logs)
	r["excess_kurtosis"] = stat.Kurtosis(logs)
	r["acf_r_1"] = stat.Lag1Autocorrelation(logs)
	r["acf_abs_1"] = stat.Lag1Autocorrelation(abs)
	return r.sanitize()
}

// LogReturns returns the one-cycle log returns of prices.
func LogReturns(prices []float64) stat.Float64Slice {
	if len(prices) < 2 {
		return nil
	}
	out := make(stat.Float64Slice, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// Summarize merges basic and stylized metrics with model extras. Extras never
// override computed metrics.
func Summarize(prices []float64, extras map[string]float64) Report {
	out := Basic(prices)
	for k, v := range Stylized(prices) {
		out[k] = v
	}
	for k, v := range extras {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out.sanitize()
}

// sanitize drops NaN and infinite values, which JSON cannot carry.
func (r Report) sanitize() Report {
	maps.DeleteFunc(r, func(_ string, v float64) bool {
		return math.IsNaN(v) || math.IsInf(v, 0)
	})
	return r
}
