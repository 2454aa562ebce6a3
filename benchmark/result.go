package benchmark

import (
	"time"
)

// CycleResult is the measurement of one full pass over the test file.
type CycleResult struct {
	Cycle   int           // zero-based cycle index
	Mode    Mode          // ModeRead or ModeWrite
	Bytes   int64         // bytes transferred
	Blocks  int           // transfers issued
	Elapsed time.Duration // time spent inside the transfer loop
}

// Throughput returns bytes per second, or 0 when nothing was timed.
func (c CycleResult) Throughput() float64 {
	if c.Elapsed <= 0 {
		return 0
	}
	return float64(c.Bytes) / c.Elapsed.Seconds()
}

// Status is the terminal state of a run.
type Status int

const (
	StatusComplete Status = iota
	StatusAborted
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusAborted:
		return "aborted"
	case StatusInterrupted:
		return "interrupted"
	}
	return "unknown"
}

// RunResult holds every completed cycle in execution order. It is
// read-only once Run returns.
type RunResult struct {
	Config    Config
	Cycles    []CycleResult
	Status    Status
	Err       error   // terminal error, nil unless aborted or cleanup failed
	Warnings  []error // non-fatal, e.g. ErrUnsupportedPlatform
	Mechanism string  // cache bypass in effect
	Volume    Volume  // filesystem holding the test file, zero if unknown
	Started   time.Time
	Finished  time.Time
}

// Completed reports whether every configured cycle ran without error.
func (r *RunResult) Completed() bool {
	return r.Status == StatusComplete && r.Err == nil
}

// ByMode returns the cycles of mode m in execution order.
func (r *RunResult) ByMode(m Mode) []CycleResult {
	var out []CycleResult
	for _, c := range r.Cycles {
		if c.Mode == m {
			out = append(out, c)
		}
	}
	return out
}

func (r *RunResult) warn(err error) {
	for _, w := range r.Warnings {
		if w.Error() == err.Error() {
			return
		}
	}
	r.Warnings = append(r.Warnings, err)
}
