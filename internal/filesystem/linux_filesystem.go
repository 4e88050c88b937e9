package filesystem

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/UpCloudLtd/recovery-volumes/internal/logger"
	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	DefaultBlkidCmd         = "blkid"
	blkidCmdErrCodeNotFound = 2
)

type LinuxFilesystem struct {
	log      *logrus.Entry
	blkidCmd string
}

func NewLinuxFilesystem(blkidCmd string, log *logrus.Entry) *LinuxFilesystem {
	if blkidCmd == "" {
		blkidCmd = DefaultBlkidCmd
	}
	return &LinuxFilesystem{
		log:      log,
		blkidCmd: blkidCmd,
	}
}

// MountedVolumes parses /proc/self/mountinfo.
func (m *LinuxFilesystem) MountedVolumes(ctx context.Context) ([]MountedVolume, error) {
	infos, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to scan mounted volumes: %w", err)
	}
	mounts := make([]MountedVolume, 0, len(infos))
	for _, i := range infos {
		mounts = append(mounts, MountedVolume{
			Device:     i.Source,
			MountPoint: i.Mountpoint,
			FSType:     i.FSType,
			Options:    i.Options,
		})
	}
	logger.WithContext(ctx, m.log).WithField("count", len(mounts)).Trace("scanned mounted volumes")
	return mounts, nil
}

// Mount issues mount(2) directly.
func (m *LinuxFilesystem) Mount(ctx context.Context, source, target, fsType string, flags uintptr, data string) error {
	logger.WithContext(ctx, m.log).WithFields(logrus.Fields{
		logger.BlockDeviceKey:    source,
		logger.MountPointKey:     target,
		logger.FilesystemTypeKey: fsType,
		"flags":                  flags,
		logger.MountOptionsKey:   data,
	}).Debug("mount")
	if err := unix.Mount(source, target, fsType, flags, data); err != nil {
		return &os.PathError{Op: "mount", Path: target, Err: err}
	}
	return nil
}

// Unmount issues umount2(2), lazily when detach is set.
func (m *LinuxFilesystem) Unmount(ctx context.Context, target string, detach bool) error {
	flags := 0
	if detach {
		flags = unix.MNT_DETACH
	}
	logger.WithContext(ctx, m.log).WithFields(logrus.Fields{logger.MountPointKey: target, "detach": detach}).Debug("unmount")
	if err := unix.Unmount(target, flags); err != nil {
		return &os.PathError{Op: "umount", Path: target, Err: err}
	}
	return nil
}

func (m *LinuxFilesystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Probe reads the superblock signature of device with blkid, bypassing the cache.
func (m *LinuxFilesystem) Probe(ctx context.Context, device string) (string, error) {
	blkidArgs := []string{
		// low-level superblocks probing (bypass cache)
		"--probe",
		// output format
		"--output", "value",
		// show specified tag
		"--match-tag", "TYPE",
		device,
	}

	logger.WithContext(ctx, m.log).WithFields(logrus.Fields{logger.CommandKey: m.blkidCmd, logger.CommandArgsKey: blkidArgs}).Debug("executing command")
	output, err := exec.CommandContext(ctx, m.blkidCmd, blkidArgs...).CombinedOutput()
	if err != nil {
		if cmdExitCode(err) == blkidCmdErrCodeNotFound {
			return "", nil
		}
		return "", fmt.Errorf("probing %s filesystem failed: %w (%s)", device, err, formatCmdError(output))
	}
	return strings.TrimSpace(strings.ToLower(string(output))), nil
}

func (m *LinuxFilesystem) Size(ctx context.Context, path string, reserve int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	size := fileSize(f, reserve)
	logger.WithContext(ctx, m.log).WithFields(logrus.Fields{"path": path, "reserve": reserve, "size": size}).Debug("computed size")
	return size, nil
}

// Wipe opens path, creating it when missing, and destroys its content. Only
// the open is checked; the wipe itself is best effort.
func (m *LinuxFilesystem) Wipe(ctx context.Context, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	size := fileSize(f, 0)
	if err := wipe(f, size); err != nil {
		logger.WithContext(ctx, m.log).WithField("path", path).WithError(err).Warn("wipe incomplete")
	}
	return nil
}

// Statistics returns capacity-related volume statistics for the given volume path.
func (m *LinuxFilesystem) Statistics(volumePath string) (VolumeStatistics, error) {
	var statfs unix.Statfs_t
	// See http://man7.org/linux/man-pages/man2/statfs.2.html for details.
	err := unix.Statfs(volumePath, &statfs)
	if err != nil {
		return VolumeStatistics{}, err
	}
	volStats := VolumeStatistics{
		AvailableBytes: int64(statfs.Bavail) * int64(statfs.Bsize),                         //nolint:unconvert // unix.Statfs_t integer types varies between GOARCHs
		TotalBytes:     int64(statfs.Blocks) * int64(statfs.Bsize),                         //nolint:unconvert // unix.Statfs_t integer types varies between GOARCHs
		UsedBytes:      (int64(statfs.Blocks) - int64(statfs.Bfree)) * int64(statfs.Bsize), //nolint:unconvert // unix.Statfs_t integer types varies between GOARCHs

		AvailableInodes: int64(statfs.Ffree),
		TotalInodes:     int64(statfs.Files),
		UsedInodes:      int64(statfs.Files) - int64(statfs.Ffree),
	}

	return volStats, nil
}
