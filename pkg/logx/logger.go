package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = fileTimeFormat
}

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
)

// compKey tags every line with the component that wrote it.
const compKey = "comp"

// Logger is a small structured logger. A Logger built by Service follows
// Service.Apply; the zero value discards everything.
type Logger struct {
	svc  *Service
	base *zerolog.Logger

	comp   string
	fields []Field
}

// Nop returns a logger that never writes.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{base: &zl}
}

// NewWriter builds a logger writing JSON lines to w. An empty level means debug.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{base: &zl}
}

func (l Logger) IsZero() bool { return l.svc == nil && l.base == nil && l.comp == "" && len(l.fields) == 0 }

func (l Logger) root() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.base != nil:
		return *l.base
	default:
		return zerolog.Nop()
	}
}

// Enabled reports whether level would be written.
func (l Logger) Enabled(level Level) bool { return level >= l.root().GetLevel() }

// Named returns a logger for component comp. It replaces any earlier name
// rather than stacking a second "comp" key.
func (l Logger) Named(comp string) Logger {
	l.comp = strings.TrimSpace(comp)
	return l
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	l.fields = append(append([]Field(nil), l.fields...), fields...)
	return l
}

func (l Logger) Debug(msg string, fields ...Field) { l.write(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.write(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.write(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.write(zerolog.ErrorLevel, msg, fields) }

func (l Logger) write(level zerolog.Level, msg string, fields []Field) {
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if caller := callerAt(3); caller != "" {
		e.Str(zerolog.CallerFieldName, caller)
	}
	if l.comp != "" {
		e.Str(compKey, l.comp)
	}
	for _, group := range [][]Field{l.fields, fields} {
		for _, f := range group {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}

// callerAt returns file:line without the directory.
func callerAt(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	if !ValidLevel(s) || s == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return def
	}
	return lvl
}

// ValidLevel reports whether s is one of trace, debug, info, warn (or
// warning) and error. Empty means the default.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}
