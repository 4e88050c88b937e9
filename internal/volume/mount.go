package volume

import (
	"context"
	"fmt"

	"github.com/UpCloudLtd/recovery-volumes/internal/filesystem"
	"github.com/UpCloudLtd/recovery-volumes/internal/fstab"
	"github.com/UpCloudLtd/recovery-volumes/internal/logger"
)

const (
	OperationMount   = "mount"
	OperationUnmount = "unmount"

	mountPointPerm = 0o755
)

func isMountable(fsType string) bool {
	switch fsType {
	case fstab.FSTypeExt4, fstab.FSTypeSquashFS, fstab.FSTypeVFAT, fstab.FSTypeF2FS:
		return true
	}
	return false
}

// EnsurePathMounted mounts the volume owning path at its configured mount point.
func (m *Manager) EnsurePathMounted(ctx context.Context, path string) error {
	return m.EnsurePathMountedAt(ctx, path, "")
}

// EnsureVolumeMounted mounts an already resolved volume.
func (m *Manager) EnsureVolumeMounted(ctx context.Context, v *fstab.Volume) error {
	if v == nil {
		logger.WithContext(ctx, m.log).Error("cannot mount unknown volume")
		return ErrUnknownVolume
	}
	return m.EnsurePathMountedAt(ctx, v.MountPoint, "")
}

// EnsurePathMountedAt mounts the volume owning path at mountPoint, or at the
// volume's own mount point when mountPoint is empty. Already mounted volumes
// are left alone unless vold manages them.
func (m *Manager) EnsurePathMountedAt(ctx context.Context, path, mountPoint string) (err error) {
	defer func() { m.observe(OperationMount, err) }()
	log := logger.WithContext(ctx, m.log).WithField("path", path)

	v := m.VolumeForPath(ctx, path)
	if v == nil {
		log.Error("unknown volume for path")
		return fmt.Errorf("%w for path [%s]", ErrUnknownVolume, path)
	}
	if v.IsRamdisk() {
		// The ramdisk is always mounted.
		return nil
	}

	mounts, err := m.fs.MountedVolumes(ctx)
	if err != nil {
		log.WithError(err).Error("failed to scan mounted volumes")
		return err
	}

	if mountPoint == "" {
		mountPoint = v.MountPoint
	}
	log = log.WithFields(volumeFields(v)).WithField(logger.MountPointKey, mountPoint)

	if !v.IsVoldManaged() && filesystem.FindMountedVolume(mounts, mountPoint) != nil {
		log.Debug("volume is already mounted")
		return nil
	}

	if err := m.fs.MkdirAll(mountPoint, mountPointPerm); err != nil {
		log.WithError(err).Warn("failed to create mount point")
	}

	if !isMountable(v.FSType) {
		log.Errorf("unknown fs_type \"%s\"", v.FSType)
		return fmt.Errorf("%w \"%s\" for %s", ErrUnsupportedFilesystem, v.FSType, mountPoint)
	}
	if err := m.fs.Mount(ctx, v.BlockDevice, mountPoint, v.FSType, v.Flags, v.FSOptions); err != nil {
		log.WithError(err).Error("failed to mount")
		return fmt.Errorf("failed to mount %s: %w", mountPoint, err)
	}
	log.Info("mounted")
	return nil
}

// EnsurePathUnmounted unmounts the volume owning path. "/storage/<label>/..."
// paths are resolved by label.
func (m *Manager) EnsurePathUnmounted(ctx context.Context, path string, detach bool) error {
	var v *fstab.Volume
	if _, ok := storageLabel(path); ok {
		v = m.VolumeForStoragePath(path)
	} else {
		v = m.VolumeForPath(ctx, path)
	}
	return m.EnsureVolumeUnmounted(ctx, v, detach)
}

// EnsureVolumeUnmounted unmounts v if it is currently mounted. A detached
// unmount succeeds even while the filesystem still has open handles.
func (m *Manager) EnsureVolumeUnmounted(ctx context.Context, v *fstab.Volume, detach bool) (err error) {
	defer func() { m.observe(OperationUnmount, err) }()
	log := logger.WithContext(ctx, m.log)

	if v == nil {
		log.Error("cannot unmount unknown volume")
		return ErrUnknownVolume
	}
	log = log.WithFields(volumeFields(v)).WithField("detach", detach)
	if v.IsRamdisk() {
		// The ramdisk is always mounted; you can't unmount it.
		log.Error("cannot unmount ramdisk")
		return ErrRamdisk
	}

	mounts, err := m.fs.MountedVolumes(ctx)
	if err != nil {
		log.WithError(err).Error("failed to scan mounted volumes")
		return err
	}
	if filesystem.FindMountedVolume(mounts, v.MountPoint) == nil {
		log.Debug("volume is already unmounted")
		return nil
	}

	if err := m.fs.Unmount(ctx, v.MountPoint, detach); err != nil {
		log.WithError(err).Error("failed to unmount")
		return fmt.Errorf("failed to unmount %s: %w", v.MountPoint, err)
	}
	log.Info("unmounted")
	return nil
}
