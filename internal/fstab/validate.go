package fstab

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

var errInvalidVolume = errors.New("invalid volume")

// mountFlags maps fstab flag names to mount(2) flags.
var mountFlags = map[string]uintptr{ //nolint: gochecknoglobals // lookup table
	"defaults":   0,
	"ro":         unix.MS_RDONLY,
	"nosuid":     unix.MS_NOSUID,
	"nodev":      unix.MS_NODEV,
	"noexec":     unix.MS_NOEXEC,
	"sync":       unix.MS_SYNCHRONOUS,
	"remount":    unix.MS_REMOUNT,
	"mand":       unix.MS_MANDLOCK,
	"dirsync":    unix.MS_DIRSYNC,
	"noatime":    unix.MS_NOATIME,
	"nodiratime": unix.MS_NODIRATIME,
	"relatime":   unix.MS_RELATIME,
	"bind":       unix.MS_BIND,
	"rec":        unix.MS_REC,
	"unbindable": unix.MS_UNBINDABLE,
	"private":    unix.MS_PRIVATE,
	"slave":      unix.MS_SLAVE,
	"shared":     unix.MS_SHARED,
}

// ParseMountFlags converts flag names into a mount(2) bitmask.
func ParseMountFlags(names []string) (uintptr, error) {
	var flags uintptr
	for _, n := range names {
		f, ok := mountFlags[strings.TrimSpace(n)]
		if !ok {
			return 0, fmt.Errorf("unknown mount flag '%s'", n)
		}
		flags |= f
	}
	return flags, nil
}

// FormatMountFlags is the inverse of ParseMountFlags, used for listing.
func FormatMountFlags(flags uintptr) []string {
	var r []string
	for n, f := range mountFlags {
		if f != 0 && flags&f == f {
			r = append(r, n)
		}
	}
	sort.Strings(r)
	return r
}

// Validate checks a single record for fields every consumer relies on.
func Validate(v Volume) error {
	switch {
	case v.MountPoint == "":
		return fmt.Errorf("%w: mount point is not specified", errInvalidVolume)
	case v.FSType == "":
		return fmt.Errorf("%w: fs type is not specified for %s", errInvalidVolume, v.MountPoint)
	case v.BlockDevice == "":
		return fmt.Errorf("%w: block device is not specified for %s", errInvalidVolume, v.MountPoint)
	case v.FSType == FSTypeRamdisk:
		return fmt.Errorf("%w: %s can't be declared as %s", errInvalidVolume, v.MountPoint, FSTypeRamdisk)
	}
	return nil
}
