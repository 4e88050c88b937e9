package fstab

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type yamlVolume struct {
	Device           string   `yaml:"device"`
	MountPoint       string   `yaml:"mount_point"`
	Type             string   `yaml:"type"`
	Options          string   `yaml:"options"`
	Flags            []string `yaml:"flags"`
	Length           int64    `yaml:"length"`
	KeyLoc           string   `yaml:"key_loc"`
	Label            string   `yaml:"label"`
	VoldManaged      bool     `yaml:"vold_managed"`
	LogicalBlockSize uint32   `yaml:"logical_blk_size"`
	EraseBlockSize   uint32   `yaml:"erase_blk_size"`
}

type yamlTable struct {
	Volumes []yamlVolume `yaml:"volumes"`
}

// YAMLFile is a Source reading the volume table from a YAML document:
//
//	volumes:
//	  - device: /dev/block/by-name/userdata
//	    mount_point: /data
//	    type: ext4
//	    flags: [nosuid, nodev, noatime]
//	    key_loc: footer
type YAMLFile string

func (f YAMLFile) Volumes() ([]Volume, error) {
	b, err := os.ReadFile(string(f))
	if err != nil {
		return nil, err
	}
	return ParseYAML(b)
}

func ParseYAML(b []byte) ([]Volume, error) {
	var doc yamlTable
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("couldn't unmarshal volume table: %w", err)
	}
	volumes := make([]Volume, 0, len(doc.Volumes))
	for i, r := range doc.Volumes {
		flags, err := ParseMountFlags(r.Flags)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, r.MountPoint, err)
		}
		volumes = append(volumes, Volume{
			MountPoint:       r.MountPoint,
			FSType:           r.Type,
			BlockDevice:      r.Device,
			FSOptions:        r.Options,
			Flags:            flags,
			Length:           r.Length,
			KeyLoc:           r.KeyLoc,
			Label:            r.Label,
			VoldManaged:      r.VoldManaged,
			LogicalBlockSize: r.LogicalBlockSize,
			EraseBlockSize:   r.EraseBlockSize,
		})
	}
	return volumes, nil
}
