package volume

import (
	"context"
	"fmt"
	"strconv"

	"github.com/UpCloudLtd/recovery-volumes/internal/fstab"
	"github.com/UpCloudLtd/recovery-volumes/internal/logger"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	OperationFormat = "format"

	// CryptFooterOffset is the space reserved at the end of the device for the
	// crypt footer when the volume declares no explicit negative length.
	CryptFooterOffset = 0x4000

	ext4BlockSize     = 4096
	ext4MinRaidStride = 8192
	f2fsSectorSize    = 4096
)

// Format wipes volume and builds a fresh filesystem on it.
func (m *Manager) Format(ctx context.Context, volume string) error {
	return m.FormatWithSeed(ctx, volume, "")
}

// FormatWithSeed wipes volume and builds a fresh filesystem on it. When
// directory is set the new filesystem is populated with its content. volume
// must be the exact mount point of a configured volume.
func (m *Manager) FormatWithSeed(ctx context.Context, volume, directory string) (err error) {
	defer func() { m.observe(OperationFormat, err) }()
	log := logger.WithContext(ctx, m.log).WithField(logger.VolumeKey, volume)
	if directory != "" {
		log = log.WithField(logger.DirectoryKey, directory)
	}

	v := m.VolumeForPath(ctx, volume)
	if v == nil {
		log.Error("unknown volume")
		return fmt.Errorf("%w \"%s\"", ErrUnknownVolume, volume)
	}
	log = log.WithFields(volumeFields(v))
	if v.IsRamdisk() {
		log.Error("can't format ramdisk volume")
		return ErrRamdisk
	}
	if v.MountPoint != volume {
		log.Error("can't give path to format")
		return fmt.Errorf("%w: \"%s\"", ErrVolumePathMismatch, volume)
	}
	if err := m.EnsurePathUnmounted(ctx, volume, false); err != nil {
		log.WithError(err).Error("failed to unmount before format")
		return err
	}
	if v.FSType != fstab.FSTypeExt4 && v.FSType != fstab.FSTypeF2FS {
		log.Error("fs_type unsupported for format")
		return fmt.Errorf("%w \"%s\" for format", ErrUnsupportedFilesystem, v.FSType)
	}

	if v.KeyLocIsPath() {
		log.WithField(logger.KeyLocationKey, v.KeyLoc).Info("wiping key metadata")
		if err := m.fs.Wipe(ctx, v.KeyLoc); err != nil {
			log.WithField(logger.KeyLocationKey, v.KeyLoc).WithError(err).Error("failed to open key metadata")
			return fmt.Errorf("failed to open %s: %w", v.KeyLoc, err)
		}
	}

	length, err := m.formatLength(ctx, v)
	if err != nil {
		log.WithError(err).Error("failed to compute filesystem length")
		return err
	}
	if length > 0 {
		log = log.WithField(logger.LengthKey, humanize.IBytes(uint64(length)))
	}

	if v.IsVoldManaged() {
		log.Error("can't format vold volume")
		return fmt.Errorf("%w: \"%s\"", ErrVoldManaged, volume)
	}

	log.Info("formatting volume")
	if v.FSType == fstab.FSTypeExt4 {
		err = m.runAll(ctx, log, mke2fsArgs(m.tools, v, length), e2fsdroidArgs(m.tools, v, volume, directory))
	} else {
		err = m.runAll(ctx, log, mkfsF2FSArgs(m.tools, v, length), sloadF2FSArgs(m.tools, v, volume, directory))
	}
	if err != nil {
		return fmt.Errorf("failed to make %s on %s: %w", v.FSType, v.BlockDevice, err)
	}
	log.Info("volume formatted")
	return nil
}

// formatLength returns the filesystem size in bytes, 0 meaning the tool
// should use the whole device.
func (m *Manager) formatLength(ctx context.Context, v *fstab.Volume) (int64, error) {
	if v.Length > 0 {
		return v.Length, nil
	}
	if v.Length == 0 && !v.HasFooterKey() {
		return 0, nil
	}
	reserve := int64(CryptFooterOffset)
	if v.Length != 0 {
		reserve = -v.Length
	}
	size, err := m.fs.Size(ctx, v.BlockDevice, reserve)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", v.BlockDevice, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w %d for %s", ErrInvalidLength, size, v.BlockDevice)
	}
	return size, nil
}

// runAll runs each non-empty argument vector in order and stops at the first failure.
func (m *Manager) runAll(ctx context.Context, log *logrus.Entry, cmds ...[]string) error {
	for _, args := range cmds {
		if len(args) == 0 {
			continue
		}
		if code, err := m.exec.Run(ctx, args); err != nil {
			log.WithFields(logrus.Fields{logger.CommandKey: args[0], logger.ExitCodeKey: code}).Error("format tool failed")
			return err
		}
	}
	return nil
}

// raidGeometry returns the ext4 stride and stripe width in blocks. The stride
// is at least 8 KiB.
func raidGeometry(v *fstab.Volume) (stride, stripeWidth uint32) {
	stride = v.LogicalBlockSize / ext4BlockSize
	stripeWidth = v.EraseBlockSize / ext4BlockSize
	if v.LogicalBlockSize != 0 && v.LogicalBlockSize < ext4MinRaidStride {
		stride = ext4MinRaidStride / ext4BlockSize
	}
	return stride, stripeWidth
}

func mke2fsArgs(t Tools, v *fstab.Volume, length int64) []string {
	args := []string{t.Mke2fs, "-F", "-t", "ext4", "-b", strconv.Itoa(ext4BlockSize)}
	if v.EraseBlockSize != 0 && v.LogicalBlockSize != 0 {
		stride, stripeWidth := raidGeometry(v)
		args = append(args, "-E", fmt.Sprintf("stride=%d,stripe-width=%d", stride, stripeWidth))
	}
	args = append(args, v.BlockDevice)
	if length != 0 {
		args = append(args, strconv.FormatInt(length/ext4BlockSize, 10))
	}
	return args
}

func e2fsdroidArgs(t Tools, v *fstab.Volume, volume, directory string) []string {
	if directory == "" {
		return nil
	}
	return []string{t.E2fsdroid, "-e", "-f", directory, "-a", volume, v.BlockDevice}
}

func mkfsF2FSArgs(t Tools, v *fstab.Volume, length int64) []string {
	args := []string{
		t.MkfsF2FS,
		"-d1",
		"-f",
		"-O", "encrypt",
		"-O", "quota",
		"-O", "verity",
		"-w", strconv.Itoa(f2fsSectorSize),
		v.BlockDevice,
	}
	if length >= f2fsSectorSize {
		args = append(args, strconv.FormatInt(length/f2fsSectorSize, 10))
	}
	return args
}

func sloadF2FSArgs(t Tools, v *fstab.Volume, volume, directory string) []string {
	if directory == "" {
		return nil
	}
	return []string{t.SloadF2FS, "-f", directory, "-t", volume, v.BlockDevice}
}
