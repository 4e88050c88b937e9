package volume

import (
	"context"

	"github.com/UpCloudLtd/recovery-volumes/internal/fstab"
)

// WriteCompatFstab writes a plain /etc/fstab so tools like busybox mount work.
func (m *Manager) WriteCompatFstab(ctx context.Context, path string) error {
	if m.table == nil {
		return ErrNoVolumeTable
	}
	entries := m.table.CompatEntries(func(mountPoint string) *fstab.Volume {
		return m.VolumeForMountPointDetectFS(ctx, mountPoint)
	})
	return fstab.WriteCompatFile(path, entries)
}
