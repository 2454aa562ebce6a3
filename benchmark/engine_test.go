package benchmark

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBypass claims to bypass the cache without touching the descriptor.
// align 0 behaves like O_DIRECT; align 1 like F_NOCACHE.
type fakeBypass struct {
	strict *bool
	align  int
}

func (fakeBypass) Name() string         { return "fake" }
func (fakeBypass) OpenFlag() int        { return 0 }
func (fakeBypass) Apply(*os.File) error { return nil }
func (b fakeBypass) Supported() bool    { return b.strict == nil || *b.strict }

func (b fakeBypass) Alignment() int {
	if b.align == 0 {
		return Alignment
	}
	return b.align
}

func withBypass(t *testing.T, b CacheBypass) {
	t.Helper()
	prev := hostBypass
	hostBypass = func() CacheBypass { return b }
	t.Cleanup(func() { hostBypass = prev })
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Path:      filepath.Join(t.TempDir(), "testfile.dat"),
		TotalSize: 4 * mib,
		BlockSize: mib,
		Cycles:    2,
		Mode:      ModeWrite,
		Seed:      1,
		Create:    true,
		Delete:    true,
	}
}

func runEngine(t *testing.T, cfg Config, opts ...Option) (*RunResult, *OpLog, error) {
	t.Helper()
	ops := NewOpLog()
	e, err := New(cfg, append([]Option{WithOpLog(ops)}, opts...)...)
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NotNil(t, res)
	return res, ops, err
}

func opsOf(l *OpLog, kind OpKind) []Op {
	var out []Op
	for _, op := range l.Ops() {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

func TestEngineSequentialWriteCycles(t *testing.T) {
	cfg := testConfig(t)
	cfg.TotalSize = 100 * mib
	cfg.BlockSize = 10 * mib
	cfg.Cycles = 3

	res, ops, err := runEngine(t, cfg)
	require.NoError(t, err)
	assert.True(t, res.Completed())
	require.Len(t, res.Cycles, 3)
	for i, c := range res.Cycles {
		assert.Equal(t, i, c.Cycle)
		assert.Equal(t, ModeWrite, c.Mode)
		assert.Equal(t, int64(104857600), c.Bytes)
		assert.Equal(t, 10, c.Blocks)
		assert.Positive(t, c.Elapsed)
	}

	writes := opsOf(ops, OpWrite)
	require.Len(t, writes, 30)
	for i, op := range writes {
		assert.Equal(t, int64(i%10)*10*mib, op.Offset)
		assert.Equal(t, int64(10*mib), op.Length)
	}
	assert.Zero(t, ops.Count(OpRead))
	assert.NoFileExists(t, cfg.Path)
}

func TestEngineReadShortFinalBlock(t *testing.T) {
	cfg := testConfig(t)
	cfg.TotalSize = 10 * mib
	cfg.BlockSize = 3 * mib
	cfg.Cycles = 1
	cfg.Mode = ModeRead

	res, ops, err := runEngine(t, cfg)
	require.NoError(t, err)
	require.Len(t, res.Cycles, 1)
	assert.Equal(t, int64(10485760), res.Cycles[0].Bytes)
	assert.Equal(t, 4, res.Cycles[0].Blocks)

	reads := opsOf(ops, OpRead)
	require.Len(t, reads, 4)
	assert.Equal(t, []int64{3 * mib, 3 * mib, 3 * mib, 1 * mib},
		[]int64{reads[0].Length, reads[1].Length, reads[2].Length, reads[3].Length})
}

func TestEngineRejectsZeroBlockSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlockSize = 0
	ops := NewOpLog()

	e, err := New(cfg, WithOpLog(ops))
	require.Error(t, err)
	assert.Nil(t, e)
	assert.ErrorIs(t, err, ErrConfig)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "BlockSize", cerr.Field)
	assert.NoFileExists(t, cfg.Path)
	assert.Zero(t, ops.Len())
}

func TestEngineClosePerCycleOpens(t *testing.T) {
	for _, tt := range []struct {
		closePerCycle bool
		opens         int
	}{
		{false, 1},
		{true, 10},
	} {
		cfg := testConfig(t)
		cfg.Mode = ModeRead
		cfg.Cycles = 10
		cfg.ClosePerCycle = tt.closePerCycle

		res, ops, err := runEngine(t, cfg)
		require.NoError(t, err)
		assert.Len(t, res.Cycles, 10)
		assert.Equal(t, tt.opens, ops.Count(OpOpen), "close per cycle %v", tt.closePerCycle)
		assert.Equal(t, tt.opens, ops.Count(OpClose), "close per cycle %v", tt.closePerCycle)
	}
}

func TestEngineDryRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = ModeAll
	cfg.DryRun = true

	res, ops, err := runEngine(t, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Cycles, 4)
	for _, c := range res.Cycles {
		assert.Equal(t, cfg.TotalSize, c.Bytes)
	}
	assert.Zero(t, ops.Count(OpRead))
	assert.Zero(t, ops.Count(OpWrite))
	assert.Equal(t, 1, ops.Count(OpCreate))
	assert.Equal(t, 1, ops.Count(OpDelete))
	assert.NoFileExists(t, cfg.Path)
}

func TestEngineDryRunKeepsFileWhenDeleteSuppressed(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	cfg.Delete = false

	_, ops, err := runEngine(t, cfg)
	require.NoError(t, err)
	assert.Zero(t, ops.Count(OpDelete))
	fi, err := os.Stat(cfg.Path)
	require.NoError(t, err)
	assert.Equal(t, cfg.TotalSize, fi.Size())
}

func TestEngineNoCreateLeavesSizeUnchanged(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, CreateTestFile(cfg.Path, cfg.TotalSize, nil))
	cfg.Create = false
	cfg.Delete = false

	for _, mode := range []Mode{ModeWrite, ModeRead, ModeAll} {
		cfg.Mode = mode
		_, ops, err := runEngine(t, cfg)
		require.NoError(t, err)
		assert.Zero(t, ops.Count(OpCreate))
		fi, err := os.Stat(cfg.Path)
		require.NoError(t, err)
		assert.Equal(t, cfg.TotalSize, fi.Size(), "mode %s", mode)
	}
}

func TestEngineNoCreateMissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Create = false

	res, _, err := runEngine(t, cfg)
	require.Error(t, err)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "stat", ioErr.Op)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Empty(t, res.Cycles)
}

func TestEngineNoCreateFileTooSmall(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, CreateTestFile(cfg.Path, cfg.TotalSize/2, nil))
	cfg.Create = false

	res, _, err := runEngine(t, cfg)
	require.Error(t, err)
	assert.Equal(t, StatusAborted, res.Status)
	assert.FileExists(t, cfg.Path)
}

func TestEngineRoundTripFixedPattern(t *testing.T) {
	cfg := testConfig(t)
	cfg.TotalSize = 4*mib + 3*4096
	cfg.BlockSize = mib
	cfg.Mode = ModeAll
	cfg.Cycles = 1
	cfg.DisableCache = true
	cfg.Delete = false

	res, _, err := runEngine(t, cfg)
	require.NoError(t, err)
	require.Len(t, res.Cycles, 2)

	data, err := os.ReadFile(cfg.Path)
	require.NoError(t, err)
	require.Len(t, data, int(cfg.TotalSize))

	pattern := make([]byte, cfg.BlockSize)
	FillPattern(pattern)
	for _, b := range SequentialBlocks(cfg.TotalSize, cfg.BlockSize) {
		got := data[b.Offset : b.Offset+b.Length]
		require.True(t, bytes.Equal(pattern[:b.Length], got), "block at %d differs", b.Offset)
	}
}

func TestEngineModeAllAlternates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = ModeAll
	cfg.Cycles = 3

	res, ops, err := runEngine(t, cfg)
	require.NoError(t, err)
	require.Len(t, res.Cycles, 6)
	for i, c := range res.Cycles {
		assert.Equal(t, i/2, c.Cycle)
		if i%2 == 0 {
			assert.Equal(t, ModeWrite, c.Mode)
		} else {
			assert.Equal(t, ModeRead, c.Mode)
		}
	}
	assert.Len(t, res.ByMode(ModeWrite), 3)
	assert.Len(t, res.ByMode(ModeRead), 3)
	assert.Equal(t, 12, ops.Count(OpWrite))
	assert.Equal(t, 12, ops.Count(OpRead))
}

// In mode all the read cycle reads what the paired write cycle wrote, and
// the next write cycle regenerates the buffer instead of writing back what
// was read.
func TestEngineModeAllRandomBufferRegeneratedPerWrite(t *testing.T) {
	cfg := testConfig(t)
	cfg.TotalSize = mib
	cfg.BlockSize = mib
	cfg.Mode = ModeAll
	cfg.Cycles = 2
	cfg.RandomBuffer = true
	cfg.Delete = false

	var snapshots [][]byte
	e, err := New(cfg, WithProgress(func(p Progress) {
		if p.BytesDone != p.TotalBytes {
			return
		}
		data, err := os.ReadFile(cfg.Path)
		require.NoError(t, err)
		snapshots = append(snapshots, data)
	}))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshots, 4)
	assert.Equal(t, snapshots[0], snapshots[1], "read must not change the file")
	assert.NotEqual(t, snapshots[1], snapshots[2], "second write must use fresh random contents")
	assert.Equal(t, snapshots[2], snapshots[3])
}

func TestEngineMisalignedAbortKeepsCompletedCycles(t *testing.T) {
	strict := false
	withBypass(t, fakeBypass{strict: &strict})

	cfg := testConfig(t)
	cfg.TotalSize = 3*4096 + 100
	cfg.BlockSize = 4096
	cfg.Cycles = 3
	cfg.DisableCache = true

	res, ops, err := runEngine(t, cfg, WithProgress(func(p Progress) {
		if p.Cycle == 0 && p.BytesDone == p.TotalBytes {
			strict = true
		}
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMisalignedIO)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "write", ioErr.Op)
	assert.Equal(t, int64(3*4096), ioErr.Offset)
	var mis *MisalignedIOError
	require.ErrorAs(t, err, &mis)
	assert.Equal(t, 100, mis.Length)

	assert.Equal(t, StatusAborted, res.Status)
	assert.False(t, res.Completed())
	require.Len(t, res.Cycles, 1)
	assert.Equal(t, cfg.TotalSize, res.Cycles[0].Bytes)
	assert.Equal(t, 1, ops.Count(OpDelete), "cleanup still runs after an abort")
	assert.NoFileExists(t, cfg.Path)
}

func TestEngineDescriptorBypassAcceptsUnalignedBlocks(t *testing.T) {
	withBypass(t, fakeBypass{align: 1})

	cfg := testConfig(t)
	cfg.TotalSize = 10000
	cfg.BlockSize = 3000
	cfg.Cycles = 2
	cfg.Mode = ModeAll
	cfg.DisableCache = true

	res, ops, err := runEngine(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, "fake", res.Mechanism)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Cycles, 4)
	for _, c := range res.Cycles {
		assert.Equal(t, int64(10000), c.Bytes)
		assert.Equal(t, 4, c.Blocks)
	}
	assert.Len(t, opsOf(ops, OpWrite), 8)
	assert.Len(t, opsOf(ops, OpRead), 8)
}

func TestEngineInterruptedKeepsCompletedCycles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = ModeRead
	cfg.Cycles = 5

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, err := New(cfg, WithProgress(func(p Progress) {
		if p.Cycle == 1 && p.BytesDone == cfg.BlockSize {
			cancel()
		}
	}))
	require.NoError(t, err)

	res, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, StateInterrupted, e.State())
	require.Len(t, res.Cycles, 1)
	assert.Equal(t, cfg.TotalSize, res.Cycles[0].Bytes)
	assert.False(t, res.Completed())
	assert.NoFileExists(t, cfg.Path)
}

func TestEngineCancelledBeforeStart(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := New(cfg)
	require.NoError(t, err)
	res, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Empty(t, res.Cycles)
}

func TestEngineRandomSeekReproducible(t *testing.T) {
	offsets := func() [][]int64 {
		cfg := testConfig(t)
		cfg.TotalSize = 16 * mib
		cfg.RandomSeek = true
		cfg.Seed = 99
		res, ops, err := runEngine(t, cfg)
		require.NoError(t, err)
		require.Len(t, res.Cycles, 2)

		var perCycle [][]int64
		writes := opsOf(ops, OpWrite)
		for c := 0; c < 2; c++ {
			var blocks []Block
			var offs []int64
			for _, op := range writes[c*16 : (c+1)*16] {
				blocks = append(blocks, Block{Offset: op.Offset, Length: op.Length})
				offs = append(offs, op.Offset)
			}
			assertPartition(t, blocks, cfg.TotalSize)
			perCycle = append(perCycle, offs)
		}
		return perCycle
	}

	a, b := offsets(), offsets()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[0], a[1], "each cycle draws a new order")
}

func TestEngineWithRandOverridesSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.TotalSize = 16 * mib
	cfg.Cycles = 1
	cfg.RandomSeek = true

	_, ops, err := runEngine(t, cfg, WithRand(rand.New(rand.NewSource(5))))
	require.NoError(t, err)
	want := ShuffledBlocks(SequentialBlocks(cfg.TotalSize, cfg.BlockSize), rand.New(rand.NewSource(5)))
	writes := opsOf(ops, OpWrite)
	require.Len(t, writes, len(want))
	for i := range want {
		assert.Equal(t, want[i].Offset, writes[i].Offset)
	}
}

func TestEngineUnsupportedPlatformWarns(t *testing.T) {
	withBypass(t, unsupportedBypass{})
	cfg := testConfig(t)
	cfg.DisableCache = true

	var logs bytes.Buffer
	res, _, err := runEngine(t, cfg, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	assert.True(t, res.Completed())
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], ErrUnsupportedPlatform)
	assert.Equal(t, "none", res.Mechanism)
	assert.Contains(t, logs.String(), "running without cache bypass")
}

func TestEngineProgressEvents(t *testing.T) {
	cfg := testConfig(t)
	cfg.TotalSize = 10 * mib
	cfg.BlockSize = 3 * mib

	var events []Progress
	_, _, err := runEngine(t, cfg, WithProgress(func(p Progress) { events = append(events, p) }))
	require.NoError(t, err)
	require.Len(t, events, 8)
	assert.Equal(t, Progress{Cycle: 0, Mode: ModeWrite, BytesDone: 3 * mib, TotalBytes: 10 * mib}, events[0])
	assert.Equal(t, Progress{Cycle: 0, Mode: ModeWrite, BytesDone: 10 * mib, TotalBytes: 10 * mib}, events[3])
	assert.Equal(t, Progress{Cycle: 1, Mode: ModeWrite, BytesDone: 10 * mib, TotalBytes: 10 * mib}, events[7])
}

func TestEngineDeleteFailureKeepsResults(t *testing.T) {
	cfg := testConfig(t)
	res, _, err := runEngine(t, cfg, WithProgress(func(p Progress) {
		if p.Cycle == 1 && p.BytesDone == p.TotalBytes {
			require.NoError(t, os.Remove(cfg.Path))
		}
	}))
	require.Error(t, err)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "delete", ioErr.Op)
	assert.Len(t, res.Cycles, 2)
	assert.Equal(t, StatusComplete, res.Status)
	assert.False(t, res.Completed())
}

func TestEngineSingleUse(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	e, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, e.State())
	_, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, e.State())

	_, err = e.Run(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConfig))
}
