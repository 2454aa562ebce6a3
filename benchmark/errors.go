package benchmark

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig matches every *ConfigError.
	ErrConfig = errors.New("invalid benchmark configuration")

	// ErrMisalignedIO matches every *MisalignedIOError.
	ErrMisalignedIO = errors.New("misaligned direct I/O")

	// ErrUnsupportedPlatform is reported as a warning when the host cannot
	// bypass the page cache. The run continues without the guarantee.
	ErrUnsupportedPlatform = errors.New("cache bypass not supported on this platform")
)

// ConfigError describes a configuration rejected before any I/O.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrConfig, e.Reason)
	}
	return fmt.Sprintf("%v: %s %s", ErrConfig, e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// IOError reports a failed operation against the test file.
type IOError struct {
	Op     string // open, create, delete, read, write, close, stat
	Path   string
	Offset int64 // -1 when the operation has no offset
	Err    error
}

func (e *IOError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s %s at offset %d: %v", e.Op, e.Path, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func newIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Offset: -1, Err: err}
}

// MisalignedIOError is returned when a direct transfer violates the
// alignment requirement of the device.
type MisalignedIOError struct {
	Offset    int64
	Length    int
	Alignment int
	Err       error // underlying syscall error, nil when caught before the call
}

func (e *MisalignedIOError) Error() string {
	msg := fmt.Sprintf("%v: offset %d length %d alignment %d", ErrMisalignedIO, e.Offset, e.Length, e.Alignment)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MisalignedIOError) Is(target error) bool { return target == ErrMisalignedIO }

func (e *MisalignedIOError) Unwrap() error { return e.Err }
