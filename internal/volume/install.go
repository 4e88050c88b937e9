package volume

import (
	"context"
	"fmt"

	"github.com/UpCloudLtd/recovery-volumes/internal/logger"
)

const OperationSetupInstallMounts = "setup_install_mounts"

// InstallPolicy decides what SetupInstallMounts does with each mount point.
// Mount points in Skip are left alone, those in Mount are mounted and all
// others unmounted, lazily when listed in Detach.
type InstallPolicy struct {
	Skip   []string
	Mount  []string
	Detach []string
}

// DefaultInstallPolicy keeps /tmp and /cache mounted for staging the package
// and detaches /data, which may still be held open by the FUSE bridge.
func DefaultInstallPolicy() InstallPolicy {
	return InstallPolicy{
		Skip:   []string{"/"},
		Mount:  []string{"/tmp", "/cache"},
		Detach: []string{"/data"},
	}
}

func contains(list []string, s string) bool {
	for i := range list {
		if list[i] == s {
			return true
		}
	}
	return false
}

// SetupInstallMounts walks the volume table in order and brings every volume
// into the state the policy asks for. It stops at the first failure, leaving
// the remaining volumes untouched.
func (m *Manager) SetupInstallMounts(ctx context.Context) (err error) {
	done := logger.Track(ctx, m.log, OperationSetupInstallMounts)
	defer func() {
		done(err)
		m.observe(OperationSetupInstallMounts, err)
	}()

	if m.table == nil {
		return ErrNoVolumeTable
	}
	for _, v := range m.table.All() {
		switch {
		case contains(m.policy.Skip, v.MountPoint):
			continue
		case contains(m.policy.Mount, v.MountPoint):
			if err := m.EnsurePathMounted(ctx, v.MountPoint); err != nil {
				return fmt.Errorf("failed to mount %s: %w", v.MountPoint, err)
			}
		default:
			if err := m.EnsureVolumeUnmounted(ctx, &v, contains(m.policy.Detach, v.MountPoint)); err != nil {
				return fmt.Errorf("failed to unmount %s: %w", v.MountPoint, err)
			}
		}
	}
	return nil
}
