package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/UpCloudLtd/recovery-volumes/internal/command"
	"github.com/UpCloudLtd/recovery-volumes/internal/filesystem"
	"github.com/UpCloudLtd/recovery-volumes/internal/volume"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const (
	// DefaultFstabPath is the recovery volume table shipped in the recovery image.
	DefaultFstabPath string = "/etc/recovery.fstab.yaml"
	// DefaultCompatFstabPath is where the plain mount table for external tools is written.
	DefaultCompatFstabPath string = "/etc/fstab"

	CommandList               string = "list"
	CommandResolve            string = "resolve"
	CommandMount              string = "mount"
	CommandUnmount            string = "unmount"
	CommandFormat             string = "format"
	CommandSetupInstallMounts string = "setup-install-mounts"
	CommandVersion            string = "version"

	envFstabPath string = "RECOVERY_FSTAB"
)

var ErrUsage = errors.New("invalid usage")

// commandArgs is the number of positional arguments each command takes.
var commandArgs = map[string]int{ //nolint: gochecknoglobals // lookup table
	CommandList:               0,
	CommandResolve:            1,
	CommandMount:              1,
	CommandUnmount:            1,
	CommandFormat:             1,
	CommandSetupInstallMounts: 0,
	CommandVersion:            0,
}

type Config struct {
	FstabPath       string
	CompatFstabPath string
	LogLevel        string
	PrintVersion    bool
	MetricsFile     string
	Blkid           string

	Tools  volume.Tools
	Policy volume.InstallPolicy

	// Command line of the requested operation.
	Command string
	Args    []string
	At      string
	Detach  bool
	Seed    string

	Filesystem filesystem.Filesystem
	Executor   command.Executor
}

func Parse(osArgs []string) (Config, error) {
	flagSet := pflag.NewFlagSet("recovery-volumes", pflag.ContinueOnError)
	c := Config{}
	defaults := volume.DefaultInstallPolicy()
	tools := volume.DefaultTools()
	flagSet.StringVar(&c.FstabPath, "fstab", DefaultFstabPath, "Recovery volume table (YAML). Can also be set with "+envFstabPath+".")
	flagSet.StringVar(&c.CompatFstabPath, "compat-fstab", DefaultCompatFstabPath, "Plain mount table written for external tools, empty to skip.")
	flagSet.StringVar(&c.LogLevel, "log-level", "info", "Logging level: panic, fatal, error, warn, warning, info, debug or trace")
	flagSet.BoolVar(&c.PrintVersion, "version", false, "Print the version and exit.")
	flagSet.StringVar(&c.MetricsFile, "metrics-file", "", "Write operation metrics in Prometheus text format to this file on exit.")
	flagSet.StringVar(&c.Blkid, "blkid", filesystem.DefaultBlkidCmd, "blkid binary used to detect on-disk filesystems")
	flagSet.StringSliceVar(&c.Policy.Skip, "skip-mount", defaults.Skip, "Mount points left alone by setup-install-mounts")
	flagSet.StringSliceVar(&c.Policy.Mount, "install-mount", defaults.Mount, "Mount points kept mounted by setup-install-mounts")
	flagSet.StringSliceVar(&c.Policy.Detach, "detach-unmount", defaults.Detach, "Mount points lazily unmounted by setup-install-mounts")
	flagSet.StringVar(&c.Tools.Mke2fs, "mke2fs", tools.Mke2fs, "mke2fs binary")
	flagSet.StringVar(&c.Tools.E2fsdroid, "e2fsdroid", tools.E2fsdroid, "e2fsdroid binary")
	flagSet.StringVar(&c.Tools.MkfsF2FS, "mkfs-f2fs", tools.MkfsF2FS, "mkfs.f2fs binary")
	flagSet.StringVar(&c.Tools.SloadF2FS, "sload-f2fs", tools.SloadF2FS, "sload.f2fs binary")
	flagSet.StringVar(&c.At, "at", "", "mount: mount point overriding the configured one")
	flagSet.BoolVar(&c.Detach, "detach", false, "unmount: detach lazily even if the filesystem is busy")
	flagSet.StringVar(&c.Seed, "seed", "", "format: directory copied into the new filesystem")

	if err := flagSet.Parse(osArgs); err != nil {
		return c, err
	}

	if !flagSet.Changed("fstab") {
		if v := os.Getenv(envFstabPath); v != "" {
			c.FstabPath = v
		}
	}

	if args := flagSet.Args(); len(args) > 0 {
		c.Command = args[0]
		c.Args = args[1:]
	}
	if c.PrintVersion {
		c.Command = CommandVersion
		return c, nil
	}
	return c, validate(c)
}

func validate(c Config) error {
	var result *multierror.Error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, err)
	}
	want, ok := commandArgs[c.Command]
	switch {
	case c.Command == "":
		result = multierror.Append(result, fmt.Errorf("%w: command missing, one of %s", ErrUsage, commandNames()))
	case !ok:
		result = multierror.Append(result, fmt.Errorf("%w: unknown command '%s'", ErrUsage, c.Command))
	case len(c.Args) != want:
		result = multierror.Append(result, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrUsage, c.Command, want, len(c.Args)))
	}
	if c.At != "" && c.Command != CommandMount {
		result = multierror.Append(result, fmt.Errorf("%w: --at is only valid with %s", ErrUsage, CommandMount))
	}
	if c.Detach && c.Command != CommandUnmount {
		result = multierror.Append(result, fmt.Errorf("%w: --detach is only valid with %s", ErrUsage, CommandUnmount))
	}
	if c.Seed != "" && c.Command != CommandFormat {
		result = multierror.Append(result, fmt.Errorf("%w: --seed is only valid with %s", ErrUsage, CommandFormat))
	}
	for name, path := range map[string]string{
		"mke2fs":     c.Tools.Mke2fs,
		"e2fsdroid":  c.Tools.E2fsdroid,
		"mkfs-f2fs":  c.Tools.MkfsF2FS,
		"sload-f2fs": c.Tools.SloadF2FS,
	} {
		if !strings.HasPrefix(path, "/") {
			result = multierror.Append(result, fmt.Errorf("%w: --%s must be an absolute path, got '%s'", ErrUsage, name, path))
		}
	}
	return result.ErrorOrNil()
}

func commandNames() string {
	return strings.Join([]string{
		CommandList, CommandResolve, CommandMount, CommandUnmount,
		CommandFormat, CommandSetupInstallMounts, CommandVersion,
	}, ", ")
}
