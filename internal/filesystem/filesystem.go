package filesystem

import (
	"context"
	"os"
)

type VolumeStatistics struct {
	AvailableBytes,
	TotalBytes,
	UsedBytes,
	AvailableInodes,
	TotalInodes,
	UsedInodes int64
}

// MountedVolume is one line of the live mount table.
type MountedVolume struct {
	Device     string
	MountPoint string
	FSType     string
	Options    string
}

// Filesystem wraps the OS primitives the volume manager relies on. The live
// mount table is read again on every MountedVolumes call.
type Filesystem interface {
	MountedVolumes(ctx context.Context) ([]MountedVolume, error)
	Mount(ctx context.Context, source, target, fsType string, flags uintptr, data string) error
	Unmount(ctx context.Context, target string, detach bool) error
	MkdirAll(path string, perm os.FileMode) error
	// Probe returns the filesystem signature found on device or an empty string.
	Probe(ctx context.Context, device string) (string, error)
	// Size returns the size of a regular file or block device minus reserve.
	Size(ctx context.Context, path string, reserve int64) (int64, error)
	// Wipe destroys the content of a key metadata file or block device.
	Wipe(ctx context.Context, path string) error
	Statistics(volumePath string) (VolumeStatistics, error)
}

// FindMountedVolume returns the live mount entry for mountPoint, if any.
func FindMountedVolume(mounts []MountedVolume, mountPoint string) *MountedVolume {
	for i := range mounts {
		if mounts[i].MountPoint == mountPoint {
			return &mounts[i]
		}
	}
	return nil
}
