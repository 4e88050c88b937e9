package volume

import (
	"context"
	"strings"

	"github.com/UpCloudLtd/recovery-volumes/internal/fstab"
	"github.com/UpCloudLtd/recovery-volumes/internal/logger"
)

const storagePrefix = "/storage/"

// VolumeForMountPoint is an exact match on the configured mount point.
func (m *Manager) VolumeForMountPoint(mountPoint string) *fstab.Volume {
	if m.table == nil {
		return nil
	}
	return m.table.Get(mountPoint)
}

// VolumeForLabel returns the first volume labelled label.
func (m *Manager) VolumeForLabel(label string) *fstab.Volume {
	if m.table == nil {
		return nil
	}
	return m.table.FindByLabel(label)
}

// VolumeForMountPointDetectFS looks mountPoint up exactly and, for ext4, f2fs
// and vfat volumes, lets the filesystem found on disk pick between entries
// declared for the same mount point. Without a matching alternate the
// configured entry is returned.
func (m *Manager) VolumeForMountPointDetectFS(ctx context.Context, mountPoint string) *fstab.Volume {
	v := m.VolumeForMountPoint(mountPoint)
	if v == nil {
		return nil
	}
	switch v.FSType {
	case fstab.FSTypeExt4, fstab.FSTypeF2FS, fstab.FSTypeVFAT:
	default:
		return v
	}

	log := logger.WithContext(ctx, m.log).WithFields(volumeFields(v))
	detected, err := m.fs.Probe(ctx, v.BlockDevice)
	if err != nil {
		log.WithError(err).Warn("filesystem detection failed, using configured type")
		return v
	}
	if detected == "" || detected == v.FSType {
		return v
	}
	for _, alt := range m.table.Alternates(mountPoint) {
		if alt.FSType == detected {
			log.WithField("detected_fs_type", detected).Info("using alternate entry for detected filesystem")
			return alt
		}
	}
	log.WithField("detected_fs_type", detected).Warn("no entry for detected filesystem, using configured type")
	return v
}

// VolumeForPath finds the volume owning path by trying path and then each of
// its ancestors, e.g. "/cache/recovery/last_log", "/cache/recovery",
// "/cache" and "/".
func (m *Manager) VolumeForPath(ctx context.Context, path string) *fstab.Volume {
	if path == "" {
		return nil
	}
	for {
		if v := m.VolumeForMountPointDetectFS(ctx, path); v != nil || path == "/" {
			return v
		}
		slash := strings.LastIndex(path, "/")
		switch {
		case slash < 0:
			return nil
		case slash == 0:
			path = "/"
		default:
			path = path[:slash]
		}
	}
}

// storageLabel extracts <label> from "/storage/<label>/...".
func storageLabel(path string) (string, bool) {
	if !strings.HasPrefix(path, storagePrefix) {
		return "", false
	}
	label := strings.TrimPrefix(path, storagePrefix)
	if i := strings.Index(label, "/"); i >= 0 {
		label = label[:i]
	}
	return label, true
}

// VolumeForStoragePath resolves "/storage/<label>/..." by label. Other paths
// never match.
func (m *Manager) VolumeForStoragePath(path string) *fstab.Volume {
	label, ok := storageLabel(path)
	if !ok {
		return nil
	}
	return m.VolumeForLabel(label)
}

// Resolve applies the label rule to /storage paths and the ancestor walk to
// everything else.
func (m *Manager) Resolve(ctx context.Context, path string) *fstab.Volume {
	if _, ok := storageLabel(path); ok {
		return m.VolumeForStoragePath(path)
	}
	return m.VolumeForPath(ctx, path)
}
