package mock

import (
	"context"
	"strings"

	"github.com/UpCloudLtd/recovery-volumes/internal/command"
	"github.com/sirupsen/logrus"
)

// Executor records argument vectors instead of running them.
type Executor struct {
	log *logrus.Logger

	// ExitCodes maps a program path to the exit code it reports.
	ExitCodes map[string]int
	Calls     [][]string
}

func NewExecutor(log *logrus.Logger) *Executor {
	return &Executor{log: log, ExitCodes: make(map[string]int)}
}

func (e *Executor) Run(_ context.Context, args []string) (int, error) {
	e.Calls = append(e.Calls, append([]string(nil), args...))
	code := e.ExitCodes[args[0]]
	e.log.Debugf("Mock Run(%s) -> %d", strings.Join(args, " "), code)
	if code != 0 {
		return code, &command.ExitError{Path: args[0], ExitCode: code}
	}
	return 0, nil
}

// Programs returns the program path of every recorded call.
func (e *Executor) Programs() []string {
	r := make([]string, 0, len(e.Calls))
	for _, c := range e.Calls {
		r = append(r, c[0])
	}
	return r
}
