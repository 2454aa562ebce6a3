package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/samber/lo"

	"diskbench/benchmark"
	"diskbench/units"
)

// ChartWidth is the length of the longest bar.
const ChartWidth = 50

var barColors = map[benchmark.Mode]*color.Color{
	benchmark.ModeWrite: color.New(color.FgMagenta),
	benchmark.ModeRead:  color.New(color.FgGreen),
}

// Chart draws one horizontal bar per cycle, scaled to the fastest cycle.
func Chart(w io.Writer, cycles []benchmark.CycleResult) {
	if len(cycles) == 0 {
		return
	}
	fastest := lo.MaxBy(cycles, func(a, b benchmark.CycleResult) bool {
		return a.Throughput() > b.Throughput()
	}).Throughput()

	fmt.Fprintln(w)
	for _, c := range cycles {
		n := 0
		if fastest > 0 {
			n = int(c.Throughput() / fastest * ChartWidth)
		}
		if n == 0 && c.Throughput() > 0 {
			n = 1
		}
		label := fmt.Sprintf("%-5s %3d", c.Mode, c.Cycle+1)
		bar := barColors[c.Mode].Sprint(strings.Repeat("#", n))
		pad := strings.Repeat(" ", ChartWidth-n)
		fmt.Fprintf(w, "%s |%s%s| %s\n", label, bar, pad, units.FormatRate(c.Throughput()))
	}
}
