package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Log level names accepted in configuration.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Output formats for the orchestrator's own log stream.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Rotation defaults follow lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// SlogConfig controls the orchestrator's own structured output.
type SlogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	TimeStamps bool   `toml:"timestamps" mapstructure:"timestamps"`
	Source     bool   `toml:"source" mapstructure:"source"`
}

// FileConfig controls the rotating files that capture service output.
// Each service gets one combined file, Dir/<name>.log, unless its
// descriptor carries an explicit path.
type FileConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Config groups the two logging concerns: the structured stream the
// orchestrator emits and the files service output is redirected to.
type Config struct {
	Slog SlogConfig `toml:"slog" mapstructure:"slog"`
	File FileConfig `toml:"file" mapstructure:"file"`
}

// NewSlogger builds the orchestrator logger on stderr so it never
// interleaves with machine-readable command output on stdout.
func (c Config) NewSlogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(c.Slog.Level),
		AddSource: c.Slog.Source,
	}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}
	var h slog.Handler
	switch {
	case strings.EqualFold(c.Slog.Format, FormatJSON):
		h = slog.NewJSONHandler(os.Stderr, opts)
	case c.Slog.Color:
		h = NewColorTextHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a configured level name to a slog.Level. Unknown
// names fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServiceWriter returns the rotating writer capturing a service's
// combined stdout and stderr. Nil when no log directory is configured.
func (c FileConfig) ServiceWriter(name string) io.WriteCloser {
	if c.Dir == "" {
		return nil
	}
	return c.Writer(filepath.Join(c.Dir, name+".log"))
}

// Writer returns a rotating writer at an explicit path.
func (c FileConfig) Writer(path string) io.WriteCloser {
	if path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
