package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// Volume identifies the filesystem the test file lives on.
type Volume struct {
	MountPoint string   `json:"mount_point"`
	Device     string   `json:"device"`
	FileSystem string   `json:"file_system"`
	Options    []string `json:"options,omitempty"`
}

// String renders v as "device on mount (fstype)".
func (v Volume) String() string {
	if v.MountPoint == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s on %s (%s)", v.Device, v.MountPoint, v.FileSystem)
}

// listPartitions is replaced in tests.
var listPartitions = func(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, true)
}

// VolumeForPath finds the mounted filesystem holding path. The file itself
// need not exist yet; its directory must.
func VolumeForPath(ctx context.Context, path string) (Volume, error) {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Volume{}, err
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	parts, err := listPartitions(ctx)
	if err != nil {
		return Volume{}, fmt.Errorf("failed to list partitions: %w", err)
	}
	v, ok := matchVolume(dir, parts)
	if !ok {
		return Volume{}, fmt.Errorf("no mounted filesystem holds %s", dir)
	}
	return v, nil
}

// matchVolume picks the partition with the longest mount point containing
// dir. Later entries win ties, matching mount stacking order.
func matchVolume(dir string, parts []disk.PartitionStat) (Volume, bool) {
	var best *disk.PartitionStat
	for i := range parts {
		p := &parts[i]
		if !underMount(dir, p.Mountpoint) {
			continue
		}
		if best == nil || len(p.Mountpoint) >= len(best.Mountpoint) {
			best = p
		}
	}
	if best == nil {
		return Volume{}, false
	}
	return Volume{
		MountPoint: best.Mountpoint,
		Device:     best.Device,
		FileSystem: best.Fstype,
		Options:    best.Opts,
	}, true
}

func underMount(dir, mount string) bool {
	if mount == "" {
		return false
	}
	if dir == mount {
		return true
	}
	prefix := mount
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(dir, prefix)
}
