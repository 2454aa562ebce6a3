// Package stats reduces per-cycle measurements into summary statistics.
package stats

import (
	"math"
	"slices"
	"time"

	"github.com/samber/lo"

	"diskbench/benchmark"
)

// Series describes a set of samples.
type Series struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// Summary holds the statistics of every cycle of one mode. Elapsed values
// are in seconds, throughput values in bytes per second.
type Summary struct {
	Mode                benchmark.Mode `json:"mode"`
	Count               int            `json:"count"`
	TotalBytes          int64          `json:"total_bytes"`
	TotalElapsed        time.Duration  `json:"-"`
	Elapsed             Series         `json:"elapsed"`
	Throughput          Series         `json:"throughput"`
	AggregateThroughput float64        `json:"aggregate_throughput"`
}

// Summarize validates cfg and then groups cycles by mode. Summaries come
// back write first, then read, skipping modes without cycles. The order of
// cycles does not affect the result.
func Summarize(cfg benchmark.Config, cycles []benchmark.CycleResult) ([]Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	groups := lo.GroupBy(cycles, func(c benchmark.CycleResult) benchmark.Mode { return c.Mode })

	var out []Summary
	for _, m := range []benchmark.Mode{benchmark.ModeWrite, benchmark.ModeRead} {
		if cs, ok := groups[m]; ok && len(cs) > 0 {
			out = append(out, summarizeMode(m, cs))
		}
	}
	return out, nil
}

func summarizeMode(m benchmark.Mode, cycles []benchmark.CycleResult) Summary {
	elapsed := lo.Map(cycles, func(c benchmark.CycleResult, _ int) float64 { return c.Elapsed.Seconds() })
	throughput := lo.Map(cycles, func(c benchmark.CycleResult, _ int) float64 { return c.Throughput() })

	s := Summary{
		Mode:         m,
		Count:        len(cycles),
		TotalBytes:   lo.SumBy(cycles, func(c benchmark.CycleResult) int64 { return c.Bytes }),
		TotalElapsed: lo.SumBy(cycles, func(c benchmark.CycleResult) time.Duration { return c.Elapsed }),
		Elapsed:      Describe(elapsed),
		Throughput:   Describe(throughput),
	}
	if s.TotalElapsed > 0 {
		s.AggregateThroughput = float64(s.TotalBytes) / s.TotalElapsed.Seconds()
	}
	return s
}

// Describe computes min, max, mean, median and the sample standard
// deviation of values. A single sample has a standard deviation of 0; an
// empty slice yields the zero Series.
func Describe(values []float64) Series {
	if len(values) == 0 {
		return Series{}
	}
	mean := Mean(values)
	return Series{
		Min:    lo.Min(values),
		Max:    lo.Max(values),
		Mean:   mean,
		Median: Median(values),
		StdDev: StdDev(values, mean),
	}
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return lo.Sum(values) / float64(len(values))
}

// Median returns the middle value, averaging the two middle values for an
// even count.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// StdDev returns the sample standard deviation (N-1 denominator).
func StdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)-1))
}
