package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	ierrors "github.com/YuminosukeSato/insightml/pkg/errors"
)

// ErrAttrKey is the field name errors are logged under.
const ErrAttrKey = "error"

type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger returns a Logger writing JSON lines to w.
func NewZerologLogger(w io.Writer, level Level) Logger {
	zl := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &zerologLogger{zl: zl}
}

// NewConsoleLogger returns a Logger writing human-readable lines to w.
func NewConsoleLogger(w io.Writer, level Level) Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	zl := zerolog.New(cw).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &zerologLogger{zl: zl}
}

func (l *zerologLogger) Debug(msg string, fields ...any) { l.emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { l.emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { l.emit(l.zl.Error(), msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{zl: l.zl.With().Fields(normalizeFields(fields)).Logger()}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.zl.GetLevel()
}

func (l *zerologLogger) emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			attachError(e, err)
			fields = fields[1:]
		}
	}
	if len(fields) > 0 {
		e.Fields(normalizeFields(fields))
	}
	e.Msg(msg)
}

func (l *zerologLogger) warning(w error) {
	e := l.zl.Warn()
	if m, ok := w.(zerolog.LogObjectMarshaler); ok {
		e.Object("warning", m)
	}
	e.Msg(w.Error())
}

func attachError(e *zerolog.Event, err error) {
	e.AnErr(ErrAttrKey, err)
	if st := extractStacktrace(err); st != "" {
		e.Str(StacktraceKey, st)
	}
	var m zerolog.LogObjectMarshaler
	if errors.As(err, &m) {
		e.Object("error.detail", m)
	}
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// normalizeFields turns arbitrary key/value pairs into a list zerolog accepts:
// string keys, errors as strings, a trailing key padded with a marker value.
func normalizeFields(fields []any) []any {
	out := make([]any, 0, len(fields)+1)
	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		var val any = "!MISSING"
		if i+1 < len(fields) {
			val = fields[i+1]
		}
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		out = append(out, key, val)
	}
	return out
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

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewZerologLogger(os.Stderr, LevelInfo)
)

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// GetLoggerWithName returns the process-wide logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// SetLogger replaces the process-wide logger. Warnings raised through
// pkg/errors.Warn are routed to it when it is zerolog-backed.
func SetLogger(l Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()

	if zl, ok := l.(*zerologLogger); ok {
		ierrors.SetZerologWarnFunc(zl.warning)
		return
	}
	ierrors.SetZerologWarnFunc(func(w error) { l.Warn(w.Error()) })
}

// SetupLogger builds the process-wide logger from config values. format is
// "json" or "console". An unknown level is an error.
func SetupLogger(level, format string, w io.Writer) (Logger, error) {
	lvl, ok := ParseLevel(level)
	if !ok {
		return nil, ierrors.NewValidationError("log.level", "must be one of debug, info, warn, error", level)
	}
	if w == nil {
		w = os.Stderr
	}
	var l Logger
	switch format {
	case "", "json":
		l = NewZerologLogger(w, lvl)
	case "console":
		l = NewConsoleLogger(w, lvl)
	default:
		return nil, ierrors.NewValidationError("log.format", "must be json or console", format)
	}
	SetLogger(l)
	return l, nil
}
