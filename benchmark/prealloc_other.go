//go:build !linux
// +build !linux

package benchmark

import "os"

func preallocate(f *os.File, size int64) error {
	return f.Truncate(size)
}
