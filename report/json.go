package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"diskbench/benchmark"
	"diskbench/stats"
)

// TimeUnit is the unit of every duration in the JSON artifact.
const TimeUnit = "seconds"

// Artifact is the JSON document written for a run.
type Artifact struct {
	RunID       string           `json:"run_id"`
	Started     time.Time        `json:"started"`
	Finished    time.Time        `json:"finished"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
	TimeUnit    string           `json:"time_unit"`
	CacheBypass string           `json:"cache_bypass"`
	Volume      benchmark.Volume `json:"volume"`
	Config      ArtifactConfig   `json:"config"`
	Summary     []stats.Summary  `json:"summary"`
	Cycles      []CycleRecord    `json:"cycles"`
}

// ArtifactConfig records the parameters of the run.
type ArtifactConfig struct {
	Path          string `json:"path"`
	TotalSize     int64  `json:"size"`
	BlockSize     int64  `json:"block_size"`
	Cycles        int    `json:"cycles"`
	Mode          string `json:"mode"`
	RandomSeek    bool   `json:"random_seek"`
	Seed          int64  `json:"seed"`
	ClosePerCycle bool   `json:"close_per_cycle"`
	RandomBuffer  bool   `json:"random_buffer"`
	DryRun        bool   `json:"dry_run"`
	DisableCache  bool   `json:"disable_cache"`
}

// CycleRecord is one cycle's timing.
type CycleRecord struct {
	Cycle      int     `json:"cycle"`
	Mode       string  `json:"mode"`
	Bytes      int64   `json:"bytes"`
	Blocks     int     `json:"blocks"`
	Elapsed    float64 `json:"elapsed"`
	Throughput float64 `json:"throughput"`
}

// NewArtifact assembles the JSON document for run.
func NewArtifact(runID string, run *benchmark.RunResult, sums []stats.Summary) Artifact {
	cfg := run.Config
	a := Artifact{
		RunID:       runID,
		Started:     run.Started,
		Finished:    run.Finished,
		Status:      run.Status.String(),
		TimeUnit:    TimeUnit,
		CacheBypass: run.Mechanism,
		Volume:      run.Volume,
		Config: ArtifactConfig{
			Path:          cfg.Path,
			TotalSize:     cfg.TotalSize,
			BlockSize:     cfg.BlockSize,
			Cycles:        cfg.Cycles,
			Mode:          string(cfg.Mode),
			RandomSeek:    cfg.RandomSeek,
			Seed:          cfg.Seed,
			ClosePerCycle: cfg.ClosePerCycle,
			RandomBuffer:  cfg.RandomBuffer,
			DryRun:        cfg.DryRun,
			DisableCache:  cfg.DisableCache,
		},
		Summary: sums,
		Cycles:  make([]CycleRecord, 0, len(run.Cycles)),
	}
	if a.Summary == nil {
		a.Summary = []stats.Summary{}
	}
	if run.Err != nil {
		a.Error = run.Err.Error()
	}
	for _, w := range run.Warnings {
		a.Warnings = append(a.Warnings, w.Error())
	}
	for _, c := range run.Cycles {
		a.Cycles = append(a.Cycles, CycleRecord{
			Cycle:      c.Cycle,
			Mode:       string(c.Mode),
			Bytes:      c.Bytes,
			Blocks:     c.Blocks,
			Elapsed:    c.Elapsed.Seconds(),
			Throughput: c.Throughput(),
		})
	}
	return a
}

// Encode writes a as indented JSON.
func (a Artifact) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// WriteJSON writes a to path.
func WriteJSON(path string, a Artifact) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON report: %w", err)
	}
	if err := a.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	return f.Close()
}

// WriteOpLog writes the operation log to path.
func WriteOpLog(path string, l *benchmark.OpLog) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if _, err := l.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write log file: %w", err)
	}
	return f.Close()
}
