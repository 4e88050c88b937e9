package fstab

import (
	"errors"
	"fmt"

	"github.com/UpCloudLtd/recovery-volumes/internal/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

var (
	ErrDuplicateEntry = errors.New("duplicate volume table entry")
	ErrEmptyTable     = errors.New("volume table source has no entries")
)

// Source provides already parsed volume records.
type Source interface {
	Volumes() ([]Volume, error)
}

// StaticSource is a Source backed by an in-memory slice.
type StaticSource []Volume

func (s StaticSource) Volumes() ([]Volume, error) {
	return append([]Volume(nil), s...), nil
}

// Table is the loaded volume table. Order of entries is the order of the
// source followed by the synthetic ramdisk entry.
type Table struct {
	volumes []Volume
}

// Load reads the source, validates the records and appends the ramdisk entry.
func Load(src Source, log *logrus.Entry) (*Table, error) {
	records, err := src.Volumes()
	if err != nil {
		return nil, fmt.Errorf("failed to read volume table: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}
	t, err := NewTable(records...)
	if err != nil {
		return nil, err
	}
	if t.Get(RamdiskMountPoint) != nil {
		return nil, fmt.Errorf("failed to add %s entry to volume table: %w", RamdiskMountPoint, ErrDuplicateEntry)
	}
	if err := t.add(ramdiskVolume()); err != nil {
		return nil, fmt.Errorf("failed to add %s entry to volume table: %w", RamdiskMountPoint, err)
	}

	log.Info("recovery filesystem table")
	for i := range t.volumes {
		v := &t.volumes[i]
		e := log.WithFields(logrus.Fields{
			"index":                  i,
			logger.MountPointKey:     v.MountPoint,
			logger.FilesystemTypeKey: v.FSType,
			logger.BlockDeviceKey:    v.BlockDevice,
			logger.LengthKey:         v.Length,
		})
		if v.Label != "" {
			e = e.WithField(logger.LabelKey, v.Label)
		}
		if v.Flags != 0 {
			e = e.WithField("flags", FormatMountFlags(v.Flags))
		}
		e.Info("volume")
	}
	return t, nil
}

// NewTable builds a table from validated records without the ramdisk entry.
func NewTable(volumes ...Volume) (*Table, error) {
	t := &Table{volumes: make([]Volume, 0, len(volumes)+1)}
	var result *multierror.Error
	for i := range volumes {
		if err := Validate(volumes[i]); err != nil {
			result = multierror.Append(result, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		if err := t.add(volumes[i]); err != nil {
			result = multierror.Append(result, fmt.Errorf("entry %d: %w", i, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return t, nil
}

// add appends v. Several entries may share a mount point as long as their
// filesystem types differ; they are alternates for filesystem detection.
func (t *Table) add(v Volume) error {
	for i := range t.volumes {
		if t.volumes[i].MountPoint == v.MountPoint && t.volumes[i].FSType == v.FSType {
			return fmt.Errorf("%w: %s (%s)", ErrDuplicateEntry, v.MountPoint, v.FSType)
		}
	}
	t.volumes = append(t.volumes, v)
	return nil
}

func (t *Table) Len() int {
	return len(t.volumes)
}

// All returns a copy of the entries in table order.
func (t *Table) All() []Volume {
	return append([]Volume(nil), t.volumes...)
}

// Get returns the first entry whose mount point equals mountPoint.
func (t *Table) Get(mountPoint string) *Volume {
	for i := range t.volumes {
		if t.volumes[i].MountPoint == mountPoint {
			return &t.volumes[i]
		}
	}
	return nil
}

// Alternates returns every entry for mountPoint in table order.
func (t *Table) Alternates(mountPoint string) []*Volume {
	var r []*Volume
	for i := range t.volumes {
		if t.volumes[i].MountPoint == mountPoint {
			r = append(r, &t.volumes[i])
		}
	}
	return r
}

// FindByLabel returns the first entry carrying label. Unlabelled entries never match.
func (t *Table) FindByLabel(label string) *Volume {
	for i := range t.volumes {
		if t.volumes[i].Label != "" && t.volumes[i].Label == label {
			return &t.volumes[i]
		}
	}
	return nil
}
