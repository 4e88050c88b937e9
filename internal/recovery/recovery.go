package recovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/UpCloudLtd/recovery-volumes/internal/command"
	"github.com/UpCloudLtd/recovery-volumes/internal/filesystem"
	"github.com/UpCloudLtd/recovery-volumes/internal/fstab"
	"github.com/UpCloudLtd/recovery-volumes/internal/logger"
	"github.com/UpCloudLtd/recovery-volumes/internal/metrics"
	"github.com/UpCloudLtd/recovery-volumes/internal/recovery/config"
	"github.com/UpCloudLtd/recovery-volumes/internal/volume"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Run loads the volume table and executes the command named in c, writing
// its output to out.
func Run(c config.Config, out io.Writer) error {
	if c.Command == config.CommandVersion {
		PrintVersion(out)
		return nil
	}

	l := logger.New(c.LogLevel).WithField(logger.HostKey, hostname())
	ctx := logger.NewContext(context.Background(), c.Command)
	rec := metrics.NewRecorder()
	if c.MetricsFile != "" {
		defer func() {
			if err := rec.WriteTextfile(c.MetricsFile); err != nil {
				logger.WithContext(ctx, l).WithError(err).Warn("failed to write metrics")
			}
		}()
	}

	m, err := newManager(ctx, c, rec, l)
	if err != nil {
		return err
	}
	return dispatch(ctx, c, m, out)
}

func newManager(ctx context.Context, c config.Config, rec *metrics.Recorder, l *logrus.Entry) (*volume.Manager, error) {
	table, err := fstab.Load(fstab.YAMLFile(c.FstabPath), l)
	if err != nil {
		logger.WithContext(ctx, l).WithError(err).Error("failed to load volume table")
		return nil, err
	}
	if c.Filesystem == nil {
		c.Filesystem = filesystem.NewLinuxFilesystem(c.Blkid, l)
	}
	if c.Executor == nil {
		c.Executor = command.NewExec(l, rec)
	}
	m := volume.NewManager(table, c.Filesystem, c.Executor, l,
		volume.WithTools(c.Tools),
		volume.WithInstallPolicy(c.Policy),
		volume.WithObserver(rec),
	)

	if c.CompatFstabPath != "" {
		// External tools fall back to their own defaults without it.
		if err := m.WriteCompatFstab(ctx, c.CompatFstabPath); err != nil {
			logger.WithContext(ctx, l).WithError(err).Warn("failed to write compatibility fstab")
		}
	}
	return m, nil
}

func dispatch(ctx context.Context, c config.Config, m *volume.Manager, out io.Writer) error {
	switch c.Command {
	case config.CommandList:
		return list(ctx, m, out)
	case config.CommandResolve:
		v := m.Resolve(ctx, c.Args[0])
		if v == nil {
			return fmt.Errorf("%w for path [%s]", volume.ErrUnknownVolume, c.Args[0])
		}
		fmt.Fprintf(out, "%s %s %s\n", v.MountPoint, v.FSType, v.BlockDevice)
		return nil
	case config.CommandMount:
		return m.EnsurePathMountedAt(ctx, c.Args[0], c.At)
	case config.CommandUnmount:
		return m.EnsurePathUnmounted(ctx, c.Args[0], c.Detach)
	case config.CommandFormat:
		return m.FormatWithSeed(ctx, c.Args[0], c.Seed)
	case config.CommandSetupInstallMounts:
		return m.SetupInstallMounts(ctx)
	}
	return fmt.Errorf("%w: unknown command '%s'", config.ErrUsage, c.Command)
}

func list(ctx context.Context, m *volume.Manager, out io.Writer) error {
	for i, v := range m.Volumes() {
		length := "-"
		if v.Length != 0 {
			length = humanize.IBytes(uint64(abs(v.Length)))
			if v.Length < 0 {
				length = "-" + length
			}
		}
		flags := "-"
		if v.Flags != 0 {
			flags = strings.Join(fstab.FormatMountFlags(v.Flags), ",")
		}
		fmt.Fprintf(out, "%d %s %s %s %s %s", i, v.MountPoint, v.FSType, v.BlockDevice, length, flags)
		if stats, ok := m.Usage(ctx, &v); ok {
			fmt.Fprintf(out, " %s/%s used", humanize.IBytes(uint64(stats.UsedBytes)), humanize.IBytes(uint64(stats.TotalBytes)))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func hostname() string {
	if n, err := os.Hostname(); err == nil {
		return n
	}
	return ""
}
