package progress

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"diskbench/benchmark"
)

func TestTrackerAccumulatesCycles(t *testing.T) {
	cfg := benchmark.DefaultConfig()
	cfg.TotalSize = 100
	cfg.BlockSize = 30
	cfg.Cycles = 2
	cfg.Mode = benchmark.ModeAll

	tr := NewTracker(cfg, io.Discard)
	defer tr.Finish()
	assert.Equal(t, int64(400), tr.bar.Total())

	for i := 0; i < cfg.Cycles; i++ {
		for _, m := range cfg.Modes() {
			for _, done := range []int64{30, 60, 90, 100} {
				tr.Update(benchmark.Progress{Cycle: i, Mode: m, BytesDone: done, TotalBytes: 100})
			}
		}
		assert.Equal(t, int64(200*(i+1)), tr.Current())
	}
}

func TestTrackerThrottlesIntermediateUpdates(t *testing.T) {
	cfg := benchmark.DefaultConfig()
	cfg.TotalSize = 1000
	cfg.BlockSize = 1
	cfg.Cycles = 1
	cfg.Mode = benchmark.ModeRead

	tr := NewTracker(cfg, io.Discard)
	defer tr.Finish()

	tr.Update(benchmark.Progress{Mode: benchmark.ModeRead, BytesDone: 1, TotalBytes: 1000})
	assert.Equal(t, int64(1), tr.Current(), "first update passes the limiter")
	tr.Update(benchmark.Progress{Mode: benchmark.ModeRead, BytesDone: 2, TotalBytes: 1000})
	assert.Equal(t, int64(1), tr.Current(), "burst of one drops the second update")
	tr.Update(benchmark.Progress{Mode: benchmark.ModeRead, BytesDone: 1000, TotalBytes: 1000})
	assert.Equal(t, int64(1000), tr.Current(), "final update is never dropped")
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "Writing 1/3", caption(benchmark.Progress{Cycle: 0, Mode: benchmark.ModeWrite}, 3))
	assert.Equal(t, "Reading 3/3", caption(benchmark.Progress{Cycle: 2, Mode: benchmark.ModeRead}, 3))
}
