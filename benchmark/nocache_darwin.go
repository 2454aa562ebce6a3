//go:build darwin
// +build darwin

package benchmark

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// descriptorFlag bypasses the page cache by setting F_NOCACHE and
// F_GLOBAL_NOCACHE on the open descriptor. Unlike O_DIRECT it puts no
// alignment constraint on transfers.
type descriptorFlag struct{}

func (descriptorFlag) Name() string  { return "F_NOCACHE" }
func (descriptorFlag) OpenFlag() int { return 0 }

func (descriptorFlag) Apply(f *os.File) error {
	if _, err := unix.FcntlInt(f.Fd(), unix.F_NOCACHE, 1); err != nil {
		return fmt.Errorf("F_NOCACHE: %w", err)
	}
	if _, err := unix.FcntlInt(f.Fd(), unix.F_GLOBAL_NOCACHE, 1); err != nil {
		return fmt.Errorf("F_GLOBAL_NOCACHE: %w", err)
	}
	return nil
}

func (descriptorFlag) Supported() bool { return true }
func (descriptorFlag) Alignment() int  { return 1 }

func platformBypass() CacheBypass { return descriptorFlag{} }
