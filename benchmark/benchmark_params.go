package benchmark

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Mode selects which transfers a cycle performs.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
	ModeAll   Mode = "all"
)

// ParseMode converts a user supplied mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRead, ModeWrite, ModeAll:
		return m, nil
	}
	return "", &ConfigError{Field: "Mode", Reason: fmt.Sprintf("unknown mode %q (want read, write or all)", s)}
}

// Config holds the parameters for a disk benchmark run
type Config struct {
	Path          string `validate:"required"`                   // Test file path
	TotalSize     int64  `validate:"gte=1"`                      // Bytes transferred per cycle
	BlockSize     int64  `validate:"gte=1,ltefield=TotalSize"`   // Bytes per read/write call
	Cycles        int    `validate:"gte=1"`                      // Number of cycles per mode
	Mode          Mode   `validate:"required,oneof=read write all"`
	RandomSeek    bool   // Randomize block order within a cycle
	Seed          int64  // Seed for block order and random buffer contents
	Create        bool   // Create the test file before the first cycle
	Delete        bool   // Delete the test file after the run
	ClosePerCycle bool   // Reopen the test file for every cycle
	RandomBuffer  bool   // Fill the buffer with pseudorandom bytes
	DryRun        bool   // Skip device reads and writes
	DisableCache  bool   // Bypass the OS page cache
}

// DefaultConfig mirrors the command line defaults.
func DefaultConfig() Config {
	return Config{
		Path:         "testfile.dat",
		TotalSize:    1 << 30,
		BlockSize:    128 << 20,
		Cycles:       10,
		Mode:         ModeAll,
		Create:       true,
		Delete:       true,
		DisableCache: true,
	}
}

var configValidate = validator.New()

// Validate checks the configuration before any I/O is attempted. Every
// failure is a *ConfigError.
func (c Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigError{Reason: err.Error()}
	}
	fe := verrs[0]
	return &ConfigError{Field: fe.Field(), Reason: describeRule(fe)}
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must be set"
	case "gte":
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
	case "ltefield":
		return fmt.Sprintf("must not exceed %s, got %v", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}

// BlocksPerCycle returns the number of transfers in one cycle.
func (c Config) BlocksPerCycle() int64 {
	return (c.TotalSize + c.BlockSize - 1) / c.BlockSize
}

// Modes expands the configured mode into the per-cycle-index sequence.
func (c Config) Modes() []Mode {
	if c.Mode == ModeAll {
		return []Mode{ModeWrite, ModeRead}
	}
	return []Mode{c.Mode}
}

func (c Config) writes() bool {
	return c.Mode == ModeWrite || c.Mode == ModeAll
}
