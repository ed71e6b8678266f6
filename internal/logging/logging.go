// Package logging configures the process-wide logrus logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kozaktomas/facepass/internal/config"
)

type Fields = logrus.Fields

type ctxKey struct{}

// RequestIDKey is the field name used for request ids.
const RequestIDKey = "request_id"

var logger = logrus.New()

// Logger returns the shared logger.
func Logger() *logrus.Logger {
	return logger
}

// Setup applies level, formatter and outputs from cfg. The returned closer
// flushes the rotating file writer, if any.
func Setup(cfg config.LoggingConfig) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(newFormatter(level >= logrus.DebugLevel))
	logger.SetReportCaller(level >= logrus.DebugLevel)

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		LocalTime:  true,
		Compress:   true,
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, fileWriter))
	return fileWriter, nil
}

func newFormatter(withCaller bool) *formatter.Formatter {
	f := &formatter.Formatter{
		TimestampFormat: "2006-01-02 15:04:05",
		HideKeys:        false,
		NoColors:        !isTerminal(),
	}
	if withCaller {
		f.CallerFirst = true
		f.CustomCallerFormatter = func(fr *runtime.Frame) string {
			s := strings.Split(fr.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(fr.File), fr.Line, s[len(s)-1])
		}
	}
	return f
}

func isTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// WithRequestID stores a request id in ctx for FromContext.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns a log entry tagged with the request id carried by ctx.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
			return logger.WithField(RequestIDKey, id)
		}
	}
	return logrus.NewEntry(logger)
}

// ErrorWithTraceID logs msg at error level under a trace id and returns the
// id so it can be shown to the caller. The request id is reused when present.
func ErrorWithTraceID(ctx context.Context, err error, fields Fields, msg string) string {
	entry := FromContext(ctx)
	traceID, _ := entry.Data[RequestIDKey].(string)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if fields == nil {
		fields = Fields{}
	}
	fields["trace_id"] = traceID
	if err != nil {
		fields["error"] = err.Error()
	}
	entry.WithFields(fields).Error(msg)
	return traceID
}
