package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/UpCloudLtd/recovery-volumes/internal/logger"
	"github.com/sirupsen/logrus"
)

// ExitCodeAbnormal is reported when the child did not exit normally, e.g. it
// was killed by a signal or could not be started at all.
const ExitCodeAbnormal = -1

var errEmptyCommand = errors.New("command is not specified")

// ExitError is returned when an external tool exits with a nonzero status.
type ExitError struct {
	Path     string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s failed with status %d", e.Path, e.ExitCode)
	}
	return fmt.Sprintf("%s failed with status %d (%s)", e.Path, e.ExitCode, e.Output)
}

// Executor runs external programs and waits for them to finish.
type Executor interface {
	// Run executes args[0] with args as its argument vector and returns the
	// exit code. A nonzero exit code is reported as *ExitError.
	Run(ctx context.Context, args []string) (int, error)
}

// Observer is notified after every external tool run.
type Observer interface {
	ObserveCommand(path string, exitCode int, duration time.Duration)
}

type Exec struct {
	log      *logrus.Entry
	observer Observer
}

func NewExec(log *logrus.Entry, observer Observer) *Exec {
	return &Exec{log: log, observer: observer}
}

// Run forks args[0] directly without a shell and blocks until it exits.
func (e *Exec) Run(ctx context.Context, args []string) (int, error) {
	if len(args) == 0 || args[0] == "" {
		return ExitCodeAbnormal, errEmptyCommand
	}
	log := logger.WithContext(ctx, e.log).WithFields(logrus.Fields{logger.CommandKey: args[0], logger.CommandArgsKey: args[1:]})
	log.Debug("executing command")

	now := time.Now()
	cmd := exec.Command(args[0], args[1:]...) //nolint: gosec // tool paths come from configuration
	output, err := cmd.CombinedOutput()
	code := exitCode(cmd, err)
	if e.observer != nil {
		e.observer.ObserveCommand(args[0], code, time.Since(now))
	}
	if err != nil || code != 0 {
		ee := &ExitError{Path: args[0], ExitCode: code, Output: formatCmdOutput(output)}
		log.WithField(logger.ExitCodeKey, code).WithError(err).Error(ee.Error())
		return code, ee
	}
	log.WithField("execution_time_ms", time.Since(now).Milliseconds()).Debug("command finished")
	return 0, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	if err != nil || cmd.ProcessState == nil {
		return ExitCodeAbnormal
	}
	return cmd.ProcessState.ExitCode()
}

func formatCmdOutput(output []byte) string {
	return strings.ReplaceAll(strings.TrimSpace(string(output)), "\n", " ")
}
