package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	HostKey           string = "host"
	VolumeKey         string = "volume"
	MountPointKey     string = "mount_point"
	FilesystemTypeKey string = "fs_type"
	BlockDeviceKey    string = "blk_device"
	MountOptionsKey   string = "mount_options"
	KeyLocationKey    string = "key_loc"
	LabelKey          string = "label"
	LengthKey         string = "length"
	DirectoryKey      string = "directory"
	CommandKey        string = "cmd"
	CommandArgsKey    string = "cmd_args"
	ExitCodeKey       string = "exit_code"
	CorrelationIDKey  string = "correlation_id"
	OperationKey      string = "operation"

	CtxCorrelationIDKey contextKey = "ctx_correlation_id"
	CtxOperationKey     contextKey = "ctx_operation"
)

// WithContext adds correlation ID and operation name found in ctx to the log entry.
func WithContext(ctx context.Context, e *logrus.Entry) *logrus.Entry {
	if v := ContextCorrelationID(ctx); v != "" {
		e = e.WithField(CorrelationIDKey, v)
	}
	if v, ok := ctx.Value(CtxOperationKey).(string); ok {
		e = e.WithField(OperationKey, v)
	}
	return e
}

// NewContext returns a copy of ctx tagged with a fresh correlation ID and the operation name.
func NewContext(ctx context.Context, operation string) context.Context {
	ctx = context.WithValue(ctx, CtxCorrelationIDKey, correlationID())
	if operation != "" {
		ctx = context.WithValue(ctx, CtxOperationKey, operation)
	}
	return ctx
}

func ContextCorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(CtxCorrelationIDKey).(string); ok {
		return v
	}
	return ""
}

// Track logs the start of an operation and returns a function that logs its outcome and duration.
func Track(ctx context.Context, e *logrus.Entry, operation string) func(error) {
	l := WithContext(ctx, e).WithField(OperationKey, operation)
	l.Debugf("%s started", operation)
	now := time.Now()
	return func(err error) {
		l = l.WithField("execution_time_ms", time.Since(now).Milliseconds())
		if err != nil {
			l.WithError(err).Errorf("%s failed", operation)
			return
		}
		l.Infof("%s OK", operation)
	}
}

// correlationID generates random correlation ID string.
// Currently ID is used only to distinguish actions from log so returned value doesn't have to be e.g globally unique.
func correlationID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// this shouldn't happen but fallback to UUID if necessary
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}

func New(logLevel string) *logrus.Logger {
	lv, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logger := logrus.New()
	logger.SetLevel(lv)
	if logger.GetLevel() > logrus.InfoLevel {
		logger.WithField("level", logger.GetLevel().String()).Warn("using log level higher than INFO is not recommended in production")
	}
	return logger
}
