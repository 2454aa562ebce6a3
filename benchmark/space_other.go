//go:build !linux && !darwin && !freebsd && !windows
// +build !linux,!darwin,!freebsd,!windows

package benchmark

func checkFreeSpace(string, int64) error { return nil }
