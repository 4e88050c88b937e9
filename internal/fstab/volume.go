package fstab

import (
	"fmt"
	"strings"
)

const (
	FSTypeRamdisk  = "ramdisk"
	FSTypeExt4     = "ext4"
	FSTypeF2FS     = "f2fs"
	FSTypeVFAT     = "vfat"
	FSTypeSquashFS = "squashfs"
	FSTypeMTD      = "mtd"
	FSTypeEMMC     = "emmc"
	FSTypeBML      = "bml"

	// KeyLocFooter marks key metadata stored in the crypt footer at the end of the block device.
	KeyLocFooter = "footer"

	// DefaultOptions is written to the compatibility file for volumes without mount options.
	DefaultOptions = "defaults"

	RamdiskMountPoint  = "/tmp"
	RamdiskBlockDevice = "ramdisk"
)

// Volume describes one entry of the recovery volume table. Entries are
// immutable once the table is loaded.
type Volume struct {
	MountPoint  string
	FSType      string
	BlockDevice string
	// FSOptions is passed verbatim as mount data.
	FSOptions string
	// Flags is the MS_* bitmask handed to mount(2).
	Flags uintptr
	// Length of the filesystem in bytes. Zero uses the whole device, a
	// negative value reserves that many bytes at the end of the device.
	Length      int64
	KeyLoc      string
	Label       string
	VoldManaged bool

	LogicalBlockSize uint32
	EraseBlockSize   uint32
}

func (v *Volume) IsRamdisk() bool {
	return v.FSType == FSTypeRamdisk
}

func (v *Volume) IsVoldManaged() bool {
	return v.VoldManaged
}

// HasFooterKey reports whether the encryption metadata lives in the device footer.
func (v *Volume) HasFooterKey() bool {
	return v.KeyLoc == KeyLocFooter
}

// KeyLocIsPath reports whether KeyLoc names a file or block device of its own.
func (v *Volume) KeyLocIsPath() bool {
	return strings.HasPrefix(v.KeyLoc, "/")
}

// CompatOptions returns the mount options column for the compatibility file.
func (v *Volume) CompatOptions() string {
	if v.FSOptions == "" {
		return DefaultOptions
	}
	return v.FSOptions
}

// CompatEligible reports whether simple tools reading /etc/fstab can make
// sense of the volume.
func (v *Volume) CompatEligible() bool {
	switch v.FSType {
	case FSTypeMTD, FSTypeEMMC, FSTypeBML:
		return false
	}
	if v.IsVoldManaged() {
		return false
	}
	return strings.HasPrefix(v.BlockDevice, "/") && strings.HasPrefix(v.MountPoint, "/")
}

func (v *Volume) String() string {
	return fmt.Sprintf("%s %s %s %d", v.MountPoint, v.FSType, v.BlockDevice, v.Length)
}

func ramdiskVolume() Volume {
	return Volume{
		MountPoint:  RamdiskMountPoint,
		FSType:      FSTypeRamdisk,
		BlockDevice: RamdiskBlockDevice,
	}
}
