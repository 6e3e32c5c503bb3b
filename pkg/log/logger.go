package log

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

var cloudLoggingOnce sync.Once

// useCloudLoggingFields switches zerolog's global field names to the Cloud Logging format.
func useCloudLoggingFields() {
	cloudLoggingOnce.Do(func() {
		zerolog.LevelFieldName = "severity"
		zerolog.MessageFieldName = "message"
		zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
			return strings.ToUpper(l.String())
		}
	})
}

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger creates a JSON logger writing to out.
func NewZerologLogger(out io.Writer, level Level) *ZerologLogger {
	useCloudLoggingFields()
	zl := zerolog.New(out).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &ZerologLogger{zl: zl}
}

// FileOptions configures an additional rotating log file. An empty Path disables it.
type FileOptions struct {
	Path       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// SetupLogger function setup logger. Logs go to stdout and, when file.Path is set,
// also to a lumberjack-rotated file.
func SetupLogger(loglevel string, file FileOptions) (*ZerologLogger, error) {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return nil, err
	}
	return NewZerologLogger(output(os.Stdout, file), level), nil
}

func output(stdout io.Writer, file FileOptions) io.Writer {
	if file.Path == "" {
		return stdout
	}
	return zerolog.MultiLevelWriter(stdout, &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSize,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAge,
		Compress:   false,
	})
}

func (l *ZerologLogger) Debug(msg string, fields ...any) { emit(l.zl.Debug(), msg, fields) }
func (l *ZerologLogger) Info(msg string, fields ...any)  { emit(l.zl.Info(), msg, fields) }
func (l *ZerologLogger) Warn(msg string, fields ...any)  { emit(l.zl.Warn(), msg, fields) }
func (l *ZerologLogger) Error(msg string, fields ...any) { emit(l.zl.Error(), msg, fields) }

// With implements Logger.With.
func (l *ZerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	if len(fields) > 0 {
		ctx = ctx.Fields(fields)
	}
	return &ZerologLogger{zl: ctx.Logger()}
}

// Enabled implements Logger.Enabled.
func (l *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	zlLevel := toZerologLevel(level)
	return zlLevel >= l.zl.GetLevel() && zlLevel >= zerolog.GlobalLevel()
}

func emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			addError(e, err)
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, ok := fields[i+1].(error); ok && key == ErrAttrKey {
			addError(e, err)
			continue
		}
		e.Interface(key, fields[i+1])
	}
	e.Msg(msg)
}

func addError(e *zerolog.Event, err error) {
	e.Str(ErrAttrKey, err.Error())
	if stacktrace := extractStacktrace(err); stacktrace != "" {
		e.Str(StacktraceAttrKey, stacktrace)
	}
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// WarningHandler returns a handler for estimator warnings (convergence,
// undefined metrics) that logs them at WARN level.
func WarningHandler(logger Logger) func(w error) {
	return func(w error) {
		logger.Warn("estimator warning", "warning", w.Error())
	}
}
