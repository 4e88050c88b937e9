package fstab

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Resolver returns the effective entry for a mount point, taking the
// on-disk filesystem into account.
type Resolver func(mountPoint string) *Volume

// CompatEntries picks one entry per mount point: the first one whose
// filesystem type agrees with what resolve reports for that mount point.
func (t *Table) CompatEntries(resolve Resolver) []*Volume {
	seen := make(map[string]bool)
	var r []*Volume
	for i := range t.volumes {
		v := &t.volumes[i]
		if seen[v.MountPoint] {
			continue
		}
		detected := resolve(v.MountPoint)
		if detected == nil || detected.FSType != v.FSType {
			continue
		}
		seen[v.MountPoint] = true
		r = append(r, v)
	}
	return r
}

// WriteCompat writes eligible volumes in the classic mount table format.
func WriteCompat(w io.Writer, volumes []*Volume) error {
	bw := bufio.NewWriter(w)
	for _, v := range volumes {
		if !v.CompatEligible() {
			continue
		}
		if _, err := fmt.Fprintf(bw, "%s %s %s %s 0 0\n", v.BlockDevice, v.MountPoint, v.FSType, v.CompatOptions()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteCompatFile replaces path with the compatibility table.
func WriteCompatFile(path string, volumes []*Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", path, err)
	}
	if err := WriteCompat(f, volumes); err != nil {
		f.Close()
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	return f.Close()
}
