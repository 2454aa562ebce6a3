//go:build windows
// +build windows

package benchmark

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// checkFreeSpace fails when the volume holding path cannot take need more
// bytes.
func checkFreeSpace(path string, need int64) error {
	if need <= 0 {
		return nil
	}
	dir, err := windows.UTF16PtrFromString(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("unable to encode %s: %v", path, err)
	}
	var avail, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &avail, &total, &free); err != nil {
		return fmt.Errorf("unable to query free space: %v", err)
	}
	if uint64(need) > avail {
		return fmt.Errorf("insufficient space: need %d bytes, %d available", need, avail)
	}
	return nil
}
