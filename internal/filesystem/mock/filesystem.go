package mock

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/UpCloudLtd/recovery-volumes/internal/filesystem"
	"github.com/sirupsen/logrus"
)

var errNotExist = errors.New("no such file or directory")

// MountCall tracks a Mount operation.
type MountCall struct {
	Source string
	Target string
	FSType string
	Flags  uintptr
	Data   string
}

// UnmountCall tracks an Unmount operation.
type UnmountCall struct {
	Target string
	Detach bool
}

// MockFilesystem keeps a synthetic live mount table. Mount and Unmount
// update it so subsequent scans observe the change.
type MockFilesystem struct {
	log *logrus.Logger

	Mounted []filesystem.MountedVolume
	// Signatures maps a device to the filesystem type Probe reports.
	Signatures map[string]string
	// Sizes maps a file or device to its size; missing paths fail to open.
	Sizes map[string]int64

	// Error injection, keyed by target or path.
	MountErr   map[string]error
	UnmountErr map[string]error
	WipeErr    map[string]error
	ScanErr    error

	MountCalls   []MountCall
	UnmountCalls []UnmountCall
	MkdirCalls   []string
	WipeCalls    []string
	SizeCalls    []string
	ProbeCalls   []string
	ScanCalls    int
}

func NewFilesystem(log *logrus.Logger) *MockFilesystem {
	return &MockFilesystem{
		log:        log,
		Signatures: make(map[string]string),
		Sizes:      make(map[string]int64),
		MountErr:   make(map[string]error),
		UnmountErr: make(map[string]error),
		WipeErr:    make(map[string]error),
	}
}

func (m *MockFilesystem) MountedVolumes(ctx context.Context) ([]filesystem.MountedVolume, error) {
	m.ScanCalls++
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	m.log.Debugf("Mock MountedVolumes() -> %d entries", len(m.Mounted))
	return append([]filesystem.MountedVolume(nil), m.Mounted...), nil
}

func (m *MockFilesystem) Mount(ctx context.Context, source, target, fsType string, flags uintptr, data string) error {
	m.MountCalls = append(m.MountCalls, MountCall{Source: source, Target: target, FSType: fsType, Flags: flags, Data: data})
	if err := m.MountErr[target]; err != nil {
		m.log.Debugf("Mock Mount(%s, %s, %s) -> %v", source, target, fsType, err)
		return err
	}
	m.Mounted = append(m.Mounted, filesystem.MountedVolume{Device: source, MountPoint: target, FSType: fsType, Options: data})
	m.log.Debugf("Mock Mount(%s, %s, %s) -> nil", source, target, fsType)
	return nil
}

func (m *MockFilesystem) Unmount(ctx context.Context, target string, detach bool) error {
	m.UnmountCalls = append(m.UnmountCalls, UnmountCall{Target: target, Detach: detach})
	if err := m.UnmountErr[target]; err != nil {
		m.log.Debugf("Mock Unmount(%s, %t) -> %v", target, detach, err)
		return err
	}
	for i := range m.Mounted {
		if m.Mounted[i].MountPoint == target {
			m.Mounted = append(m.Mounted[:i], m.Mounted[i+1:]...)
			break
		}
	}
	m.log.Debugf("Mock Unmount(%s, %t) -> nil", target, detach)
	return nil
}

func (m *MockFilesystem) MkdirAll(path string, perm os.FileMode) error {
	m.MkdirCalls = append(m.MkdirCalls, path)
	return nil
}

func (m *MockFilesystem) Probe(ctx context.Context, device string) (string, error) {
	m.ProbeCalls = append(m.ProbeCalls, device)
	m.log.Debugf("Mock Probe(%s) -> %q", device, m.Signatures[device])
	return m.Signatures[device], nil
}

func (m *MockFilesystem) Size(ctx context.Context, path string, reserve int64) (int64, error) {
	m.SizeCalls = append(m.SizeCalls, path)
	size, ok := m.Sizes[path]
	if !ok {
		return 0, &os.PathError{Op: "open", Path: path, Err: errNotExist}
	}
	if size < reserve {
		return 0, nil
	}
	return size - reserve, nil
}

func (m *MockFilesystem) Wipe(ctx context.Context, path string) error {
	m.WipeCalls = append(m.WipeCalls, path)
	if err := m.WipeErr[path]; err != nil {
		return err
	}
	return nil
}

func (m *MockFilesystem) Statistics(volumePath string) (filesystem.VolumeStatistics, error) {
	for _, mv := range m.Mounted {
		if mv.MountPoint == volumePath {
			return filesystem.VolumeStatistics{TotalBytes: 1 << 30, UsedBytes: 1 << 20, AvailableBytes: 1<<30 - 1<<20}, nil
		}
	}
	return filesystem.VolumeStatistics{}, fmt.Errorf("statfs %s: %w", volumePath, errNotExist)
}
