package filesystem

import (
	"errors"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// ioctl numbers from linux/fs.h.
	blkDiscard    = 0x1277
	blkSecDiscard = 0x127d

	wipeChunkSize = 1 << 20
)

// fileSize returns the usable size of f minus reserve: the file size for
// regular files, the device size for block devices and 0 otherwise.
func fileSize(f *os.File, reserve int64) int64 {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return 0
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return st.Size - reserve
	case unix.S_IFBLK:
		size, err := blockDeviceSize(f)
		if err != nil || size < uint64(reserve) || size > math.MaxInt64 {
			return 0
		}
		return int64(size) - reserve
	}
	return 0
}

func blockDeviceSize(f *os.File) (uint64, error) {
	var size uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size))); errno != 0 {
		return 0, errno
	}
	return size, nil
}

// wipe discards the first size bytes of a block device, falling back to
// overwriting them with zeroes.
func wipe(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT == unix.S_IFBLK {
		r := [2]uint64{0, uint64(size)}
		for _, req := range []uintptr{blkSecDiscard, blkDiscard} {
			if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(unsafe.Pointer(&r))); errno == 0 {
				return nil
			}
		}
	}
	return zeroFill(f, size)
}

func zeroFill(w io.WriterAt, size int64) error {
	buf := make([]byte, wipeChunkSize)
	for off := int64(0); off < size; off += wipeChunkSize {
		n := size - off
		if n > wipeChunkSize {
			n = wipeChunkSize
		}
		if _, err := w.WriteAt(buf[:n], off); err != nil {
			return err
		}
	}
	return nil
}

func cmdExitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func formatCmdError(output []byte) string {
	return strings.ReplaceAll(strings.TrimSpace(string(output)), "\n", " ")
}
