// Package logging builds the process logger: slog over stdout and a rotating
// log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/mattn/go-isatty"
)

// Options configure Setup.
type Options struct {
	File        string
	Level       string
	Format      string // auto, text or json
	MaxSizeMB   int
	BackupCount int
	Debug       bool
	Stdout      io.Writer
	Clock       clockwork.Clock
}

// Logging is the configured logger and the writer shared with the HTTP
// access log.
type Logging struct {
	Logger *slog.Logger
	Writer io.Writer
	Path   string

	rotator *rotatelogs.RotateLogs
}

// Close flushes and closes the log file.
func (l *Logging) Close() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// ParseLevel accepts debug, info, warn/warning and error.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// Setup opens the rotating file (if any) and builds the logger. Rotation
// happens daily or when the current file exceeds MaxSizeMB, keeping
// BackupCount old files.
func Setup(opts Options) (*Logging, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		level = slog.LevelDebug
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	out := &Logging{Writer: stdout}
	if opts.File != "" {
		path, err := filepath.Abs(opts.File)
		if err != nil {
			return nil, fmt.Errorf("log file path: %w", err)
		}
		rl, err := rotatelogs.New(path+".%Y%m%d", rotatorOptions(path, opts)...)
		if err != nil {
			return nil, fmt.Errorf("open rotating log %s: %w", path, err)
		}
		out.rotator = rl
		out.Path = path
		out.Writer = io.MultiWriter(stdout, rl)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Debug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}
	var h slog.Handler
	if useText(opts.Format, stdout) {
		h = slog.NewTextHandler(out.Writer, handlerOpts)
	} else {
		h = slog.NewJSONHandler(out.Writer, handlerOpts)
	}
	out.Logger = slog.New(h)
	out.Logger.Info("logger.initialized", "path", out.Path, "level", level.String())
	return out, nil
}

func rotatorOptions(path string, opts Options) []rotatelogs.Option {
	ro := []rotatelogs.Option{
		rotatelogs.WithClock(opts.Clock),
		rotatelogs.WithRotationTime(24 * time.Hour),
	}
	if opts.MaxSizeMB > 0 {
		ro = append(ro, rotatelogs.WithRotationSize(int64(opts.MaxSizeMB)<<20))
	}
	if opts.BackupCount > 0 {
		ro = append(ro, rotatelogs.WithRotationCount(uint(opts.BackupCount+1)))
	}
	// Symlinks need privileges on Windows.
	if runtime.GOOS != "windows" {
		ro = append(ro, rotatelogs.WithLinkName(path))
	}
	return ro
}

func useText(format string, w io.Writer) bool {
	switch strings.ToLower(format) {
	case "text":
		return true
	case "json":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
