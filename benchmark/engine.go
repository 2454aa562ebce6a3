package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"
)

// State is the engine's position in the run lifecycle.
type State int

const (
	StateIdle State = iota
	StateFileReady
	StateWriteCycle
	StateReadCycle
	StateComplete
	StateAborted
	StateInterrupted
)

func (s State) String() string {
	return [...]string{"idle", "file-ready", "write-cycle", "read-cycle", "complete", "aborted", "interrupted"}[s]
}

// Progress is delivered at every block boundary with the cycle clock paused.
type Progress struct {
	Cycle      int
	Mode       Mode
	BytesDone  int64
	TotalBytes int64
}

// ProgressFunc receives progress notifications synchronously.
type ProgressFunc func(Progress)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the run's log sink.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithOpLog records every low-level call in l.
func WithOpLog(l *OpLog) Option {
	return func(e *Engine) { e.ops = l }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithRand replaces the source used to order random-seek blocks.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.order = r }
}

var errInterrupted = errors.New("interrupted")

// Engine runs the timed cycle loop for one configuration. An Engine is
// single use and not safe for concurrent use.
type Engine struct {
	cfg      Config
	log      *slog.Logger
	ops      *OpLog
	progress ProgressFunc
	order    *rand.Rand
	buffers  *BufferFactory

	state  State
	buf    []byte
	blocks []Block
	file   *TestFile // held across cycles unless ClosePerCycle
}

// New validates cfg and returns an idle engine. An invalid configuration
// yields a *ConfigError and no side effects.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		order:   rand.New(rand.NewSource(cfg.Seed)),
		buffers: NewBufferFactory(cfg.Seed + 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Run executes every configured cycle. Completed cycles are always
// returned, also alongside an error. Cancelling ctx stops the run at the
// next block boundary; the cycle in flight is discarded and the result has
// StatusInterrupted with a nil error.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	if e.state != StateIdle {
		return nil, fmt.Errorf("engine already ran (state %s)", e.state)
	}
	res := &RunResult{Config: e.cfg, Started: time.Now(), Mechanism: "none"}
	e.log.Info("starting benchmark",
		"path", e.cfg.Path,
		"size", e.cfg.TotalSize,
		"block_size", e.cfg.BlockSize,
		"cycles", e.cfg.Cycles,
		"mode", e.cfg.Mode,
		"random_seek", e.cfg.RandomSeek,
		"dry_run", e.cfg.DryRun)

	if vol, err := VolumeForPath(ctx, e.cfg.Path); err != nil {
		e.log.Warn("unable to identify volume", "path", e.cfg.Path, "error", err)
	} else {
		res.Volume = vol
		e.log.Info("benchmark volume", "mount_point", vol.MountPoint, "device", vol.Device, "file_system", vol.FileSystem)
	}

	align := 1
	if e.cfg.DisableCache {
		align = hostBypass().Alignment()
	}
	e.buf = e.buffers.Allocate(e.cfg.BlockSize, align)
	e.buffers.Refill(e.buf, e.cfg.RandomBuffer)
	e.blocks = SequentialBlocks(e.cfg.TotalSize, e.cfg.BlockSize)

	if err := e.prepare(); err != nil {
		return e.finish(res, StateAborted, err), err
	}
	e.state = StateFileReady

	runErr := e.runCycles(ctx, res)
	final := StateComplete
	switch {
	case errors.Is(runErr, errInterrupted):
		final = StateInterrupted
		runErr = nil
		e.log.Warn("benchmark interrupted", "completed_cycles", len(res.Cycles))
	case runErr != nil:
		final = StateAborted
		e.log.Error("benchmark aborted", "error", runErr, "completed_cycles", len(res.Cycles))
	}

	if err := e.cleanup(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return e.finish(res, final, runErr), runErr
}

func (e *Engine) finish(res *RunResult, st State, err error) *RunResult {
	e.state = st
	switch st {
	case StateAborted:
		res.Status = StatusAborted
	case StateInterrupted:
		res.Status = StatusInterrupted
	default:
		res.Status = StatusComplete
	}
	res.Err = err
	res.Finished = time.Now()
	return res
}

// prepare creates the test file or checks that an existing one is large
// enough.
func (e *Engine) prepare() error {
	path := e.cfg.Path
	if e.cfg.Create {
		var fill []byte
		if !e.cfg.DryRun {
			fill = e.buf
		}
		start := time.Now()
		err := CreateTestFile(path, e.cfg.TotalSize, fill)
		e.ops.Record(Op{Kind: OpCreate, Path: path, Length: e.cfg.TotalSize, Err: err})
		if err != nil {
			return err
		}
		e.log.Info("created test file", "path", path, "size", e.cfg.TotalSize, "took", time.Since(start))
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return newIOError("stat", path, err)
	}
	if fi.Size() < e.cfg.TotalSize {
		return newIOError("stat", path, fmt.Errorf("file is %d bytes, need at least %d", fi.Size(), e.cfg.TotalSize))
	}
	return nil
}

func (e *Engine) openMode() Mode {
	if e.cfg.writes() {
		return ModeWrite
	}
	return ModeRead
}

func (e *Engine) open(res *RunResult) (*TestFile, error) {
	tf, err := OpenTestFile(e.cfg.Path, e.openMode(), e.cfg.DisableCache)
	e.ops.Record(Op{Kind: OpOpen, Path: e.cfg.Path, Err: err})
	if err != nil {
		return nil, err
	}
	res.Mechanism = tf.Mechanism()
	if w := tf.Warning(); w != nil {
		res.warn(w)
		e.log.Warn("running without cache bypass", "path", e.cfg.Path, "reason", w)
	}
	if tf.Alignment() > 1 && e.cfg.TotalSize%int64(tf.Alignment()) != 0 {
		e.log.Warn("size is not a multiple of the cache bypass alignment, the final block will fail",
			"size", e.cfg.TotalSize, "alignment", tf.Alignment())
	}
	return tf, nil
}

func (e *Engine) close(tf *TestFile) error {
	err := tf.Close()
	e.ops.Record(Op{Kind: OpClose, Path: tf.Path(), Err: err})
	return err
}

func (e *Engine) runCycles(ctx context.Context, res *RunResult) error {
	if !e.cfg.ClosePerCycle {
		tf, err := e.open(res)
		if err != nil {
			return err
		}
		e.file = tf
	}
	for i := 0; i < e.cfg.Cycles; i++ {
		for _, m := range e.cfg.Modes() {
			if ctx.Err() != nil {
				return errInterrupted
			}
			cr, err := e.runCycle(ctx, res, i, m)
			if err != nil {
				return err
			}
			res.Cycles = append(res.Cycles, cr)
			e.log.Debug("cycle finished",
				"cycle", i,
				"mode", m,
				"bytes", cr.Bytes,
				"elapsed", cr.Elapsed,
				"throughput", cr.Throughput())
		}
	}
	return nil
}

func (e *Engine) runCycle(ctx context.Context, res *RunResult, cycle int, m Mode) (CycleResult, error) {
	if m == ModeWrite {
		e.state = StateWriteCycle
		e.buffers.Refill(e.buf, e.cfg.RandomBuffer)
	} else {
		e.state = StateReadCycle
	}

	blocks := e.blocks
	if e.cfg.RandomSeek {
		blocks = ShuffledBlocks(e.blocks, e.order)
	}

	tf := e.file
	if e.cfg.ClosePerCycle {
		var err error
		if tf, err = e.open(res); err != nil {
			return CycleResult{}, err
		}
	}

	cr, err := e.transfer(ctx, tf, cycle, m, blocks)

	if e.cfg.ClosePerCycle {
		if cerr := e.close(tf); cerr != nil && err == nil {
			err = cerr
		}
	}
	return cr, err
}

// transfer is the timed region. The clock runs only while blocks are
// moving; bookkeeping at block boundaries is excluded.
func (e *Engine) transfer(ctx context.Context, tf *TestFile, cycle int, m Mode, blocks []Block) (CycleResult, error) {
	cr := CycleResult{Cycle: cycle, Mode: m}
	total := TotalLength(blocks)

	var elapsed time.Duration
	start := time.Now()
	for _, b := range blocks {
		buf := e.buf[:b.Length]
		var err error
		if !e.cfg.DryRun {
			if m == ModeWrite {
				_, err = tf.WriteAt(buf, b.Offset)
			} else {
				_, err = tf.ReadAt(buf, b.Offset)
			}
		}
		elapsed += time.Since(start)

		if !e.cfg.DryRun {
			kind := OpRead
			if m == ModeWrite {
				kind = OpWrite
			}
			e.ops.Record(Op{Kind: kind, Path: tf.Path(), Offset: b.Offset, Length: b.Length, Err: err})
		}
		if err != nil {
			return cr, err
		}
		cr.Bytes += b.Length
		cr.Blocks++
		if e.progress != nil {
			e.progress(Progress{Cycle: cycle, Mode: m, BytesDone: cr.Bytes, TotalBytes: total})
		}
		if ctx.Err() != nil && cr.Bytes < total {
			return cr, errInterrupted
		}
		start = time.Now()
	}
	cr.Elapsed = elapsed
	return cr, nil
}

func (e *Engine) cleanup() error {
	var errs []error
	if e.file != nil {
		if err := e.close(e.file); err != nil {
			errs = append(errs, err)
		}
		e.file = nil
	}
	if e.cfg.Delete {
		err := DeleteTestFile(e.cfg.Path)
		e.ops.Record(Op{Kind: OpDelete, Path: e.cfg.Path, Err: err})
		if err != nil {
			errs = append(errs, err)
		} else {
			e.log.Info("deleted test file", "path", e.cfg.Path)
		}
	}
	return errors.Join(errs...)
}
