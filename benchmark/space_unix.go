//go:build linux || darwin || freebsd
// +build linux darwin freebsd

package benchmark

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// checkFreeSpace fails when the filesystem holding path cannot take need
// more bytes.
func checkFreeSpace(path string, need int64) error {
	if need <= 0 {
		return nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(path), &st); err != nil {
		return fmt.Errorf("unable to statfs %s: %v", filepath.Dir(path), err)
	}
	avail := uint64(st.Bavail) * uint64(st.Bsize)
	if uint64(need) > avail {
		return fmt.Errorf("insufficient space: need %d bytes, %d available", need, avail)
	}
	return nil
}
