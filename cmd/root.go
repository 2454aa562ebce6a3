package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"diskbench/benchmark"
	"diskbench/config"
	"diskbench/progress"
	"diskbench/publish"
	"diskbench/report"
	"diskbench/stats"
	"diskbench/units"
)

// Process exit status.
const (
	exitOK          = 0
	exitIOError     = 1
	exitConfigError = 2
	exitInterrupted = 130
)

// options holds the raw command line.
type options struct {
	file           string
	size           string
	blockSize      string
	cycles         int
	mode           string
	randomSeek     bool
	seed           int64
	noCreate       bool
	noDelete       bool
	noProgress     bool
	noDisableCache bool
	closePerCycle  bool
	randomBuffer   bool
	dryRun         bool
	chart          bool
	jsonFile       string
	logFile        string
	metricsFile    string
	profile        string
	logLevel       string

	uploadBucket string
	uploadPrefix string
	ociConfig    string
	namespace    string
	host         string
}

// exitError carries the process exit status out of cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetContext(ctx)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	// Flag parsing errors from cobra itself.
	fmt.Fprintln(stderr, "Error:", err)
	return exitConfigError
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "diskbench",
		Short: "Measure sequential and random disk throughput",
		Long: `diskbench writes and reads a test file in fixed-size blocks for a number
of cycles, bypassing the OS page cache where the platform allows it, and
reports per-cycle throughput with summary statistics.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.profile != "" {
				p, err := config.LoadProfile(opts.profile)
				if err != nil {
					return &exitError{code: exitConfigError, err: err}
				}
				if err := p.Apply(cmd.Flags()); err != nil {
					return &exitError{code: exitConfigError, err: err}
				}
			}
			cfg, err := buildConfig(opts, cmd.Flags().Changed("seed"))
			if err != nil {
				return &exitError{code: exitConfigError, err: err}
			}
			return run(cmd.Context(), opts, cfg, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "testfile.dat", "test file path")
	f.StringVarP(&opts.size, "size", "s", "1GB", "bytes transferred per cycle (1MB = 1 MiB)")
	f.StringVarP(&opts.blockSize, "blocksize", "b", "128MB", "bytes per read/write call")
	f.IntVarP(&opts.cycles, "cycles", "c", 10, "number of cycles per mode")
	f.StringVarP(&opts.mode, "mode", "m", "all", "read, write or all")
	f.BoolVar(&opts.randomSeek, "random-seek", false, "randomize block order within each cycle")
	f.Int64Var(&opts.seed, "seed", 0, "seed for block order and buffer contents (default time based)")
	f.BoolVar(&opts.noCreate, "no-create", false, "use an existing test file")
	f.BoolVar(&opts.noDelete, "no-delete", false, "keep the test file after the run")
	f.BoolVar(&opts.noProgress, "no-progress", false, "do not show a progress bar")
	f.BoolVar(&opts.noDisableCache, "no-disable-cache", false, "go through the OS page cache")
	f.BoolVar(&opts.closePerCycle, "close-per-cycle", false, "reopen the test file for every cycle")
	f.BoolVar(&opts.randomBuffer, "random-buffer", false, "fill the buffer with pseudorandom bytes")
	f.BoolVar(&opts.dryRun, "dry-run", false, "skip device reads and writes")
	f.BoolVar(&opts.chart, "chart", false, "print a per-cycle throughput chart")
	f.StringVar(&opts.jsonFile, "json", "", "write a JSON report to this file")
	f.StringVar(&opts.logFile, "log-file", "", "write the operation log to this file")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	f.StringVar(&opts.profile, "profile", "", "YAML file with flag defaults")
	f.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&opts.uploadBucket, "upload-bucket", "", "upload the JSON report to this OCI bucket")
	f.StringVar(&opts.uploadPrefix, "upload-prefix", "diskbench/", "object name prefix for uploads")
	f.StringVar(&opts.ociConfig, "oci-config", "~/.oci/config", "path to OCI config file")
	f.StringVar(&opts.namespace, "namespace", "", "OCI namespace (fetched when empty)")
	f.StringVar(&opts.host, "host", "", "Object Storage endpoint override")

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

// buildConfig converts the command line into a benchmark configuration.
func buildConfig(opts *options, seedSet bool) (benchmark.Config, error) {
	cfg := benchmark.DefaultConfig()

	size, err := units.ParseSize(opts.size)
	if err != nil {
		return cfg, &benchmark.ConfigError{Field: "size", Reason: err.Error()}
	}
	block, err := units.ParseSize(opts.blockSize)
	if err != nil {
		return cfg, &benchmark.ConfigError{Field: "blocksize", Reason: err.Error()}
	}
	mode, err := benchmark.ParseMode(opts.mode)
	if err != nil {
		return cfg, err
	}

	cfg.Path = opts.file
	cfg.TotalSize = size
	cfg.BlockSize = block
	cfg.Cycles = opts.cycles
	cfg.Mode = mode
	cfg.RandomSeek = opts.randomSeek
	cfg.Seed = opts.seed
	if !seedSet {
		cfg.Seed = time.Now().UnixNano()
	}
	cfg.Create = !opts.noCreate
	cfg.Delete = !opts.noDelete
	cfg.ClosePerCycle = opts.closePerCycle
	cfg.RandomBuffer = opts.randomBuffer
	cfg.DryRun = opts.dryRun
	cfg.DisableCache = !opts.noDisableCache

	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, &benchmark.ConfigError{Field: "log-level", Reason: err.Error()}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// showProgress reports whether the bar should be drawn on w, the stream it
// writes to.
func showProgress(opts *options, w io.Writer) bool {
	return !opts.noProgress && isTerminal(w)
}

func run(ctx context.Context, opts *options, cfg benchmark.Config, stdout, stderr io.Writer) error {
	logger, err := newLogger(stderr, opts.logLevel)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}

	if !isTerminal(stdout) {
		color.NoColor = true
	}

	// Two runs against the same file would measure each other.
	lock := flock.New(cfg.Path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return &exitError{code: exitIOError, err: fmt.Errorf("failed to lock %s: %w", lock.Path(), err)}
	}
	if !locked {
		return &exitError{code: exitIOError, err: fmt.Errorf("another diskbench run holds %s", lock.Path())}
	}
	defer func() {
		lock.Unlock()
		os.Remove(lock.Path())
	}()

	engineOpts := []benchmark.Option{benchmark.WithLogger(logger)}
	var ops *benchmark.OpLog
	if opts.logFile != "" {
		ops = benchmark.NewOpLog()
		engineOpts = append(engineOpts, benchmark.WithOpLog(ops))
	}
	var tracker *progress.Tracker
	if showProgress(opts, stderr) {
		tracker = progress.NewTracker(cfg, stderr)
		engineOpts = append(engineOpts, benchmark.WithProgress(tracker.Update))
	}

	eng, err := benchmark.New(cfg, engineOpts...)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}
	res, runErr := eng.Run(ctx)
	if tracker != nil {
		tracker.Finish()
	}

	sums, err := stats.Summarize(cfg, res.Cycles)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}
	report.DisplayResults(stdout, res, sums)
	if opts.chart {
		report.Chart(stdout, res.Cycles)
	}

	outErr := writeOutputs(ctx, opts, res, sums, ops, logger)

	switch {
	case res.Status == benchmark.StatusInterrupted:
		return &exitError{code: exitInterrupted, err: errors.Join(runErr, outErr)}
	case runErr != nil:
		code := exitIOError
		if errors.Is(runErr, benchmark.ErrConfig) {
			code = exitConfigError
		}
		return &exitError{code: code, err: errors.Join(runErr, outErr)}
	case outErr != nil:
		return &exitError{code: exitIOError, err: outErr}
	}
	return nil
}

// writeOutputs writes every requested report file and uploads the JSON
// report. All of them are attempted even when one fails.
func writeOutputs(ctx context.Context, opts *options, res *benchmark.RunResult, sums []stats.Summary, ops *benchmark.OpLog, logger *slog.Logger) error {
	var errs []error
	artifact := report.NewArtifact(uuid.NewString(), res, sums)

	if opts.jsonFile != "" {
		if err := report.WriteJSON(opts.jsonFile, artifact); err != nil {
			errs = append(errs, err)
		}
	}
	if opts.logFile != "" {
		if err := report.WriteOpLog(opts.logFile, ops); err != nil {
			errs = append(errs, err)
		}
	}
	if opts.metricsFile != "" {
		if err := report.WriteMetrics(opts.metricsFile, sums); err != nil {
			errs = append(errs, err)
		}
	}
	if opts.uploadBucket != "" {
		if err := upload(ctx, opts, artifact, logger); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func upload(ctx context.Context, opts *options, artifact report.Artifact, logger *slog.Logger) error {
	var body bytes.Buffer
	if err := artifact.Encode(&body); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	provider, err := config.LoadOCIConfig(expandHome(opts.ociConfig), logger)
	if err != nil {
		return err
	}
	client, err := publish.NewClient(provider, opts.host)
	if err != nil {
		return err
	}
	p := publish.New(client, publish.Options{
		Bucket:    opts.uploadBucket,
		Namespace: opts.namespace,
		Prefix:    opts.uploadPrefix,
	}, logger)
	// An interrupted run still publishes what it measured.
	_, err = p.Publish(context.WithoutCancel(ctx), artifact.RunID, body.Bytes())
	return err
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
