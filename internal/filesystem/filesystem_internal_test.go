package filesystem

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystem(blkid string) *LinuxFilesystem {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewLinuxFilesystem(blkid, logger.WithFields(nil))
}

func createDeviceFile(t *testing.T, size int64) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "disk-*")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(bytes.Repeat([]byte{0xa5}, int(size)))
	require.NoError(t, err)
	return f.Name()
}

// fakeBlkid writes a shell script that behaves like blkid for a single answer.
func fakeBlkid(t *testing.T, stdout string, exitCode int) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skipf("skipping test: %s", err.Error())
	}
	path := filepath.Join(t.TempDir(), "blkid")
	script := "#!/bin/sh\nprintf '" + stdout + "'\nexit " + string(rune('0'+exitCode)) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755)) //nolint: gosec // test helper
	return path
}

func TestFileSize(t *testing.T) {
	t.Parallel()

	dev := createDeviceFile(t, 64*1024)
	m := newTestFilesystem("")

	size, err := m.Size(context.Background(), dev, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), size)

	size, err = m.Size(context.Background(), dev, 16*1024)
	require.NoError(t, err)
	assert.Equal(t, int64(48*1024), size)

	// directories are neither regular files nor block devices
	size, err = m.Size(context.Background(), t.TempDir(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	_, err = m.Size(context.Background(), filepath.Join(t.TempDir(), "missing"), 0)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWipe(t *testing.T) {
	t.Parallel()

	const size = wipeChunkSize + 4096
	dev := createDeviceFile(t, size)
	m := newTestFilesystem("")

	require.NoError(t, m.Wipe(context.Background(), dev))
	b, err := os.ReadFile(dev)
	require.NoError(t, err)
	require.Len(t, b, size)
	assert.Equal(t, make([]byte, size), b)

	// missing key file is created
	created := filepath.Join(t.TempDir(), "metadata")
	require.NoError(t, m.Wipe(context.Background(), created))
	_, err = os.Stat(created)
	require.NoError(t, err)

	require.Error(t, m.Wipe(context.Background(), filepath.Join(t.TempDir(), "missing", "metadata")))
}

// not parallel: executing freshly written scripts races with concurrent forks (ETXTBSY)
func TestProbe(t *testing.T) {
	m := newTestFilesystem(fakeBlkid(t, "F2FS\\n", 0))
	fsType, err := m.Probe(context.Background(), "/dev/block/userdata")
	require.NoError(t, err)
	assert.Equal(t, "f2fs", fsType)

	m = newTestFilesystem(fakeBlkid(t, "", blkidCmdErrCodeNotFound))
	fsType, err = m.Probe(context.Background(), "/dev/block/userdata")
	require.NoError(t, err)
	assert.Empty(t, fsType)

	m = newTestFilesystem(fakeBlkid(t, "permission denied", 4))
	_, err = m.Probe(context.Background(), "/dev/block/userdata")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestMountedVolumes(t *testing.T) {
	t.Parallel()
	if _, err := os.Stat("/proc/self/mountinfo"); err != nil {
		t.Skipf("skipping test: %s", err.Error())
	}

	m := newTestFilesystem("")
	mounts, err := m.MountedVolumes(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, mounts)
	assert.NotNil(t, FindMountedVolume(mounts, "/"))
	assert.Nil(t, FindMountedVolume(mounts, filepath.Join(t.TempDir(), "not-mounted")))
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	m := newTestFilesystem("")
	s, err := m.Statistics(os.TempDir())
	require.NoError(t, err)
	assert.Positive(t, s.TotalBytes)
}

func TestMountRequiresPrivileges(t *testing.T) {
	t.Parallel()
	if os.Getuid() == 0 {
		t.Skip("skipping test: running as root")
	}

	m := newTestFilesystem("")
	err := m.Mount(context.Background(), createDeviceFile(t, 4096), t.TempDir(), "ext4", 0, "")
	require.Error(t, err)
	var pathErr *os.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "mount", pathErr.Op)

	require.Error(t, m.Unmount(context.Background(), t.TempDir(), true))
}
