package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Console lines carry local wall-clock time; file sinks keep the zone offset.
const (
	consoleTimeFormat = "2006-01-02 15:04:05.000"
	fileTimeFormat    = "2006-01-02T15:04:05.000Z07:00"
)

const defaultLogFile = "./cronex.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the active sinks. Loggers it hands out pick up every Apply.
type Service struct {
	mu   sync.Mutex
	file *os.File

	root atomic.Pointer[zerolog.Logger]

	stdout, stderr io.Writer
}

// New applies cfg and returns the service with its root logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{stdout: os.Stdout, stderr: os.Stderr}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

// Apply rebuilds the sinks and level. Safe for concurrent use; loggers
// already handed out switch over on their next line.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(s.stdout))
	}

	var opened *os.File
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(s.stderr, "logx: open log file %q: %v\n", path, err)
		} else {
			opened = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(s.stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)

	// Swap first so no line is written to a closed file.
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = opened
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   consoleTimeFormat,
		TimeLocation: time.Local,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}
