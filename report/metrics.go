package report

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"diskbench/stats"
)

// Metrics holds the gauges exported for the node_exporter textfile
// collector.
type Metrics struct {
	Registry   *prometheus.Registry
	Throughput *prometheus.GaugeVec
	Seconds    *prometheus.GaugeVec
	Cycles     *prometheus.GaugeVec
}

// NewMetrics builds a registry populated from sums.
func NewMetrics(sums []stats.Summary) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "diskbench",
			Name:      "throughput_bytes_per_second",
			Help:      "Per-cycle throughput statistics.",
		}, []string{"mode", "stat"}),
		Seconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "diskbench",
			Name:      "cycle_seconds",
			Help:      "Per-cycle duration statistics.",
		}, []string{"mode", "stat"}),
		Cycles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "diskbench",
			Name:      "cycles",
			Help:      "Completed cycles.",
		}, []string{"mode"}),
	}
	m.Registry.MustRegister(m.Throughput, m.Seconds, m.Cycles)

	for _, s := range sums {
		mode := string(s.Mode)
		setSeries(m.Throughput, mode, s.Throughput)
		setSeries(m.Seconds, mode, s.Elapsed)
		m.Throughput.WithLabelValues(mode, "aggregate").Set(s.AggregateThroughput)
		m.Cycles.WithLabelValues(mode).Set(float64(s.Count))
	}
	return m
}

func setSeries(v *prometheus.GaugeVec, mode string, s stats.Series) {
	v.WithLabelValues(mode, "min").Set(s.Min)
	v.WithLabelValues(mode, "max").Set(s.Max)
	v.WithLabelValues(mode, "mean").Set(s.Mean)
	v.WithLabelValues(mode, "median").Set(s.Median)
	v.WithLabelValues(mode, "stddev").Set(s.StdDev)
}

// WriteMetrics writes sums to path in the Prometheus text format.
func WriteMetrics(path string, sums []stats.Summary) error {
	if err := prometheus.WriteToTextfile(path, NewMetrics(sums).Registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
