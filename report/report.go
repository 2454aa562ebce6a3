package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"diskbench/benchmark"
	"diskbench/stats"
	"diskbench/units"
)

var (
	headline = color.New(color.FgCyan, color.Bold)
	warnLine = color.New(color.FgYellow)
	failLine = color.New(color.FgRed, color.Bold)
)

// DisplayResults shows the summary of benchmark performance
func DisplayResults(w io.Writer, run *benchmark.RunResult, sums []stats.Summary) {
	cfg := run.Config
	headline.Fprintf(w, "\nDisk benchmark %s\n", cfg.Path)
	fmt.Fprintf(w, "Size: %s  Block: %s  Cycles: %d  Mode: %s  Order: %s  Cache bypass: %s\n",
		units.FormatSize(cfg.TotalSize), units.FormatSize(cfg.BlockSize), cfg.Cycles, cfg.Mode,
		order(cfg), run.Mechanism)
	fmt.Fprintf(w, "Volume: %s\n", run.Volume)
	if cfg.DryRun {
		warnLine.Fprintln(w, "Dry run: no device reads or writes were issued.")
	}
	for _, warn := range run.Warnings {
		warnLine.Fprintf(w, "Warning: %v\n", warn)
	}

	if len(sums) > 0 {
		fmt.Fprintln(w, SummaryTable(sums))
	}

	switch run.Status {
	case benchmark.StatusInterrupted:
		warnLine.Fprintf(w, "Interrupted after %d completed cycles.\n", len(run.Cycles))
	case benchmark.StatusAborted:
		failLine.Fprintf(w, "Aborted after %d completed cycles: %v\n", len(run.Cycles), run.Err)
	default:
		if run.Err != nil {
			failLine.Fprintf(w, "Completed with error: %v\n", run.Err)
		}
	}
}

// SummaryTable renders one row per mode.
func SummaryTable(sums []stats.Summary) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers("MODE", "CYCLES", "MEAN", "MEDIAN", "STD DEV", "MIN", "MAX", "MEAN TIME")
	for _, s := range sums {
		t.Row(
			string(s.Mode),
			strconv.Itoa(s.Count),
			units.FormatRate(s.Throughput.Mean),
			units.FormatRate(s.Throughput.Median),
			units.FormatRate(s.Throughput.StdDev),
			units.FormatRate(s.Throughput.Min),
			units.FormatRate(s.Throughput.Max),
			fmt.Sprintf("%.3fs", s.Elapsed.Mean),
		)
	}
	return t.Render()
}

func order(cfg benchmark.Config) string {
	if cfg.RandomSeek {
		return "random"
	}
	return "sequential"
}
