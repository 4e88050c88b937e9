// Package volume resolves paths to recovery volumes and mounts, unmounts and
// formats them.
//
// All operations are synchronous. Every mount decision reads the live mount
// table again through filesystem.Filesystem, since volumes can be mounted or
// unmounted by other parts of the process or by external agents between calls.
package volume

import (
	"context"
	"errors"

	"github.com/UpCloudLtd/recovery-volumes/internal/command"
	"github.com/UpCloudLtd/recovery-volumes/internal/filesystem"
	"github.com/UpCloudLtd/recovery-volumes/internal/fstab"
	"github.com/UpCloudLtd/recovery-volumes/internal/logger"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoVolumeTable         = errors.New("no volume table loaded")
	ErrUnknownVolume         = errors.New("unknown volume")
	ErrRamdisk               = errors.New("ramdisk volume can't be unmounted or formatted")
	ErrUnsupportedFilesystem = errors.New("unsupported filesystem type")
	ErrVolumePathMismatch    = errors.New("path is not the mount point of its volume")
	ErrVoldManaged           = errors.New("volume is managed by vold")
	ErrInvalidLength         = errors.New("invalid filesystem length")
)

// Tools holds the paths of the external filesystem construction tools.
type Tools struct {
	Mke2fs    string
	E2fsdroid string
	MkfsF2FS  string
	SloadF2FS string
}

func DefaultTools() Tools {
	return Tools{
		Mke2fs:    "/sbin/mke2fs_static",
		E2fsdroid: "/sbin/e2fsdroid_static",
		MkfsF2FS:  "/sbin/mkfs.f2fs",
		SloadF2FS: "/sbin/sload.f2fs",
	}
}

// Observer is notified about the outcome of every public operation.
type Observer interface {
	ObserveOperation(operation string, err error)
}

type Manager struct {
	table    *fstab.Table
	fs       filesystem.Filesystem
	exec     command.Executor
	tools    Tools
	policy   InstallPolicy
	observer Observer
	log      *logrus.Entry
}

type Option func(*Manager)

func WithTools(t Tools) Option {
	return func(m *Manager) {
		m.tools = t
	}
}

func WithInstallPolicy(p InstallPolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// NewManager creates a manager over table. A nil table is allowed; every
// lookup then fails as an unknown volume.
func NewManager(table *fstab.Table, fs filesystem.Filesystem, exec command.Executor, log *logrus.Entry, opts ...Option) *Manager {
	m := &Manager{
		table:  table,
		fs:     fs,
		exec:   exec,
		tools:  DefaultTools(),
		policy: DefaultInstallPolicy(),
		log:    log,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Table() *fstab.Table {
	return m.table
}

func (m *Manager) NumVolumes() int {
	if m.table == nil {
		return 0
	}
	return m.table.Len()
}

// Volumes returns the raw volume table.
func (m *Manager) Volumes() []fstab.Volume {
	if m.table == nil {
		return nil
	}
	return m.table.All()
}

func (m *Manager) observe(operation string, err error) {
	if m.observer != nil {
		m.observer.ObserveOperation(operation, err)
	}
}

func volumeFields(v *fstab.Volume) logrus.Fields {
	return logrus.Fields{
		logger.MountPointKey:     v.MountPoint,
		logger.FilesystemTypeKey: v.FSType,
		logger.BlockDeviceKey:    v.BlockDevice,
	}
}

// Usage reports space usage of v when it is currently mounted.
func (m *Manager) Usage(ctx context.Context, v *fstab.Volume) (filesystem.VolumeStatistics, bool) {
	mounts, err := m.fs.MountedVolumes(ctx)
	if err != nil || filesystem.FindMountedVolume(mounts, v.MountPoint) == nil {
		return filesystem.VolumeStatistics{}, false
	}
	stats, err := m.fs.Statistics(v.MountPoint)
	if err != nil {
		logger.WithContext(ctx, m.log).WithFields(volumeFields(v)).WithError(err).Debug("failed to read volume statistics")
		return filesystem.VolumeStatistics{}, false
	}
	return stats, true
}
