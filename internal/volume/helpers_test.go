package volume_test

import (
	"io"
	"os"

	execmock "github.com/UpCloudLtd/recovery-volumes/internal/command/mock"
	fsmock "github.com/UpCloudLtd/recovery-volumes/internal/filesystem/mock"
	"github.com/UpCloudLtd/recovery-volumes/internal/fstab"
	"github.com/UpCloudLtd/recovery-volumes/internal/volume"
	"github.com/sirupsen/logrus"
)

type testEnv struct {
	manager *volume.Manager
	fs      *fsmock.MockFilesystem
	exec    *execmock.Executor
	table   *fstab.Table
}

type recordingObserver struct {
	operations []string
	failures   int
}

func (o *recordingObserver) ObserveOperation(operation string, err error) {
	o.operations = append(o.operations, operation)
	if err != nil {
		o.failures++
	}
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	return l
}

func deviceVolumes() fstab.StaticSource {
	return fstab.StaticSource{
		{MountPoint: "/", FSType: "ext4", BlockDevice: "/dev/block/by-name/system"},
		{MountPoint: "/cache", FSType: "ext4", BlockDevice: "/dev/block/by-name/cache"},
		{MountPoint: "/data", FSType: "ext4", BlockDevice: "/dev/block/by-name/userdata", KeyLoc: fstab.KeyLocFooter, LogicalBlockSize: 4096, EraseBlockSize: 16384},
		{MountPoint: "/data", FSType: "f2fs", BlockDevice: "/dev/block/by-name/userdata", KeyLoc: fstab.KeyLocFooter},
		{MountPoint: "/vendor", FSType: "squashfs", BlockDevice: "/dev/block/by-name/vendor"},
		{MountPoint: "/misc", FSType: "emmc", BlockDevice: "/dev/block/by-name/misc"},
		{MountPoint: "/sdcard", FSType: "vfat", BlockDevice: "/dev/block/mmcblk1p1", Label: "sdcard1", VoldManaged: true},
		{MountPoint: "/usb", FSType: "vfat", BlockDevice: "/dev/block/sda1", Label: "usbdisk"},
	}
}

// fatalHelper is satisfied by both *testing.T and GinkgoT().
type fatalHelper interface {
	Helper()
	Fatal(args ...any)
}

func newTestEnv(t fatalHelper, src fstab.Source, opts ...volume.Option) *testEnv {
	t.Helper()
	l := testLogger()
	table, err := fstab.Load(src, l.WithField("package", "volume_test"))
	if err != nil {
		t.Fatal(err)
	}
	fs := fsmock.NewFilesystem(l)
	exec := execmock.NewExecutor(l)
	return &testEnv{
		manager: volume.NewManager(table, fs, exec, l.WithField("package", "volume_test"), opts...),
		fs:      fs,
		exec:    exec,
		table:   table,
	}
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}
