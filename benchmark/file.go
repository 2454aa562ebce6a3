package benchmark

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// FilePerm is the permission used when creating the test file.
const FilePerm = 0644

// CacheBypass is a host mechanism that keeps transfers out of the page
// cache. One implementation is chosen per platform at open time.
type CacheBypass interface {
	// Name identifies the mechanism in logs.
	Name() string
	// OpenFlag is OR-ed into the open(2) flags.
	OpenFlag() int
	// Apply runs against the freshly opened descriptor.
	Apply(f *os.File) error
	// Supported reports whether the mechanism actually bypasses the cache.
	Supported() bool
	// Alignment is the transfer alignment the mechanism demands, 1 for none.
	Alignment() int
}

// hostBypass selects the mechanism for this platform.
var hostBypass = platformBypass

type unsupportedBypass struct{}

func (unsupportedBypass) Name() string         { return "none" }
func (unsupportedBypass) OpenFlag() int        { return 0 }
func (unsupportedBypass) Apply(*os.File) error { return nil }
func (unsupportedBypass) Supported() bool      { return false }
func (unsupportedBypass) Alignment() int       { return 1 }

// TestFile is an open handle on the benchmark file.
type TestFile struct {
	path    string
	f       *os.File
	bypass  CacheBypass
	warning error
}

// CreateTestFile creates path, preallocates it to exactly size bytes and,
// when fill is non-empty, writes fill repeatedly over the whole file so
// later reads hit allocated extents. An existing file is truncated first.
func CreateTestFile(path string, size int64, fill []byte) error {
	var existing int64
	if fi, err := os.Stat(path); err == nil {
		existing = fi.Size()
	}
	if err := checkFreeSpace(path, size-existing); err != nil {
		return newIOError("create", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, FilePerm)
	if err != nil {
		return newIOError("create", path, err)
	}
	if err := preallocate(f, size); err != nil {
		f.Close()
		return newIOError("create", path, err)
	}
	if len(fill) > 0 {
		for off := int64(0); off < size; off += int64(len(fill)) {
			chunk := fill
			if rest := size - off; rest < int64(len(chunk)) {
				chunk = chunk[:rest]
			}
			if _, err := f.WriteAt(chunk, off); err != nil {
				f.Close()
				return &IOError{Op: "create", Path: path, Offset: off, Err: err}
			}
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return newIOError("create", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return newIOError("create", path, err)
	}
	return nil
}

// DeleteTestFile removes path. A missing file is an error.
func DeleteTestFile(path string) error {
	if err := os.Remove(path); err != nil {
		return newIOError("delete", path, err)
	}
	return nil
}

// OpenTestFile opens path read-only for ModeRead and read-write otherwise.
// With disableCache the platform's bypass mechanism is applied; if the host
// or filesystem cannot honour it the file is still opened and Warning
// returns an error matching ErrUnsupportedPlatform.
func OpenTestFile(path string, mode Mode, disableCache bool) (*TestFile, error) {
	flags := os.O_RDWR
	if mode == ModeRead {
		flags = os.O_RDONLY
	}
	if !disableCache {
		f, err := os.OpenFile(path, flags, FilePerm)
		if err != nil {
			return nil, newIOError("open", path, err)
		}
		return &TestFile{path: path, f: f, bypass: unsupportedBypass{}}, nil
	}

	bypass := hostBypass()
	if !bypass.Supported() {
		f, err := os.OpenFile(path, flags, FilePerm)
		if err != nil {
			return nil, newIOError("open", path, err)
		}
		return &TestFile{
			path:    path,
			f:       f,
			bypass:  bypass,
			warning: ErrUnsupportedPlatform,
		}, nil
	}

	f, err := os.OpenFile(path, flags|bypass.OpenFlag(), FilePerm)
	if err != nil && errors.Is(err, syscall.EINVAL) && bypass.OpenFlag() != 0 {
		// The filesystem refused the open flag (tmpfs and some overlay
		// mounts do), fall back to a cached open.
		f, err = os.OpenFile(path, flags, FilePerm)
		if err != nil {
			return nil, newIOError("open", path, err)
		}
		return &TestFile{
			path:    path,
			f:       f,
			bypass:  unsupportedBypass{},
			warning: fmt.Errorf("%w: %s rejected by filesystem of %s", ErrUnsupportedPlatform, bypass.Name(), path),
		}, nil
	}
	if err != nil {
		return nil, newIOError("open", path, err)
	}
	if err := bypass.Apply(f); err != nil {
		f.Close()
		return nil, newIOError("open", path, fmt.Errorf("%s: %w", bypass.Name(), err))
	}
	return &TestFile{path: path, f: f, bypass: bypass}, nil
}

// Path returns the file's path.
func (t *TestFile) Path() string { return t.path }

// Warning returns the non-fatal cache bypass warning, if any.
func (t *TestFile) Warning() error { return t.warning }

// Bypassing reports whether transfers skip the page cache.
func (t *TestFile) Bypassing() bool { return t.bypass.Supported() }

// Mechanism names the cache bypass in effect.
func (t *TestFile) Mechanism() string { return t.bypass.Name() }

// Alignment returns the required transfer alignment, 1 when unconstrained.
func (t *TestFile) Alignment() int {
	if t.Bypassing() {
		return t.bypass.Alignment()
	}
	return 1
}

// Size returns the current on-disk size of the file.
func (t *TestFile) Size() (int64, error) {
	fi, err := t.f.Stat()
	if err != nil {
		return 0, newIOError("stat", t.path, err)
	}
	return fi.Size(), nil
}

// ReadAt reads exactly len(p) bytes at off.
func (t *TestFile) ReadAt(p []byte, off int64) (int, error) {
	if err := t.checkAlignment(p, off); err != nil {
		return 0, &IOError{Op: "read", Path: t.path, Offset: off, Err: err}
	}
	n, err := t.f.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	if err != nil {
		return n, &IOError{Op: "read", Path: t.path, Offset: off, Err: t.classify(err, p, off)}
	}
	return n, nil
}

// WriteAt writes all of p at off.
func (t *TestFile) WriteAt(p []byte, off int64) (int, error) {
	if err := t.checkAlignment(p, off); err != nil {
		return 0, &IOError{Op: "write", Path: t.path, Offset: off, Err: err}
	}
	n, err := t.f.WriteAt(p, off)
	if err != nil {
		return n, &IOError{Op: "write", Path: t.path, Offset: off, Err: t.classify(err, p, off)}
	}
	return n, nil
}

// Close releases the handle. It does not flush anything to the device.
func (t *TestFile) Close() error {
	if err := t.f.Close(); err != nil {
		return newIOError("close", t.path, err)
	}
	return nil
}

func (t *TestFile) checkAlignment(p []byte, off int64) error {
	align := t.Alignment()
	if align <= 1 {
		return nil
	}
	if off%int64(align) != 0 || len(p)%align != 0 || !isAligned(p, align) {
		return &MisalignedIOError{Offset: off, Length: len(p), Alignment: align}
	}
	return nil
}

// classify maps EINVAL from an aligned-only transfer to a MisalignedIOError.
func (t *TestFile) classify(err error, p []byte, off int64) error {
	if t.Alignment() > 1 && errors.Is(err, syscall.EINVAL) {
		return &MisalignedIOError{Offset: off, Length: len(p), Alignment: t.Alignment(), Err: err}
	}
	return err
}
