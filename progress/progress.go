package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/minio/pkg/console"
	"golang.org/x/time/rate"

	"diskbench/benchmark"
)

// refreshInterval bounds how often engine notifications reach the bar.
const refreshInterval = 125 * time.Millisecond

// ProgressBar wrapper structure
type ProgressBar struct {
	*pb.ProgressBar
}

// NewProgressBar - instantiate a byte counting progress bar writing to w.
func NewProgressBar(total int64, w io.Writer) *ProgressBar {
	// Progress bar specific theme customization.
	console.SetColor("Bar", color.New(color.FgGreen, color.Bold))

	bar := pb.New64(total)
	bar.SetWriter(w)
	bar.Set(pb.Bytes, true)

	// Customize the refresh rate and behavior
	bar.SetRefreshRate(refreshInterval)
	bar.SetTemplateString(`{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`)

	bar.Start()

	return &ProgressBar{ProgressBar: bar}
}

// SetCaption sets the caption of the progress bar.
func (p *ProgressBar) SetCaption(caption string) *ProgressBar {
	p.ProgressBar.Set("prefix", console.Colorize("Bar", caption))
	return p
}

// Tracker turns engine progress notifications into bar updates. It is
// called on the engine's goroutine with the cycle clock paused, so it does
// as little as possible: most notifications are dropped by a limiter and
// only a cycle's final notification is always applied.
type Tracker struct {
	bar     *ProgressBar
	limiter *rate.Limiter
	cycles  int
	base    int64 // bytes of fully finished cycles
	caption string
}

// NewTracker sizes a bar for every byte cfg will transfer.
func NewTracker(cfg benchmark.Config, w io.Writer) *Tracker {
	total := cfg.TotalSize * int64(cfg.Cycles) * int64(len(cfg.Modes()))
	return &Tracker{
		bar:     NewProgressBar(total, w),
		limiter: rate.NewLimiter(rate.Every(refreshInterval), 1),
		cycles:  cfg.Cycles,
	}
}

// Update is a benchmark.ProgressFunc.
func (t *Tracker) Update(p benchmark.Progress) {
	last := p.BytesDone >= p.TotalBytes
	if !last && !t.limiter.Allow() {
		return
	}
	if c := caption(p, t.cycles); c != t.caption {
		t.caption = c
		t.bar.SetCaption(c)
	}
	t.bar.SetCurrent(t.base + p.BytesDone)
	if last {
		t.base += p.TotalBytes
	}
}

// Current returns the number of bytes shown as done.
func (t *Tracker) Current() int64 { return t.bar.Current() }

// Finish stops rendering.
func (t *Tracker) Finish() { t.bar.Finish() }

func caption(p benchmark.Progress, cycles int) string {
	verb := "Reading"
	if p.Mode == benchmark.ModeWrite {
		verb = "Writing"
	}
	return fmt.Sprintf("%s %d/%d", verb, p.Cycle+1, cycles)
}
