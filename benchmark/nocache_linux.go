//go:build linux || freebsd
// +build linux freebsd

package benchmark

import (
	"os"

	"golang.org/x/sys/unix"
)

// directFlag bypasses the page cache by opening with O_DIRECT.
type directFlag struct{}

func (directFlag) Name() string         { return "O_DIRECT" }
func (directFlag) OpenFlag() int        { return unix.O_DIRECT }
func (directFlag) Apply(*os.File) error { return nil }
func (directFlag) Supported() bool      { return true }
func (directFlag) Alignment() int       { return Alignment }

func platformBypass() CacheBypass { return directFlag{} }
