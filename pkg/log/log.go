// Package log configures the process-wide slog logger: a text or JSON handler
// writing to stdout and, when a directory is configured, to a rotating file.
package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
)

// DefaultPattern names rotated files when none is configured.
const DefaultPattern = "gravecore-%Y-%m-%d.log"

// Config controls the log handler.
type Config struct {
	// Path is the directory for rotated files; empty logs to stdout only.
	Path         string `toml:"path"`
	RotationTime string `toml:"rotation_time"`
	MaxAge       string `toml:"max_age"`
	Pattern      string `toml:"pattern"`
	Level        string `toml:"level"`
	Format       string `toml:"format"` // text or json
}

// Validate checks level, format and, for file output, the rotation settings.
func (cfg *Config) Validate() error {
	if !slices.Contains([]string{"", "debug", "info", "warn", "error"}, strings.ToLower(cfg.Level)) {
		return errors.New("invalid level: " + cfg.Level)
	}
	if !slices.Contains([]string{"", "text", "json"}, strings.ToLower(cfg.Format)) {
		return errors.New("invalid format: " + cfg.Format)
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil
	}
	if _, err := time.ParseDuration(cfg.RotationTime); err != nil {
		return errors.Wrap(err, "rotation_time is invalid")
	}
	if _, err := time.ParseDuration(cfg.MaxAge); err != nil {
		return errors.Wrap(err, "max_age is invalid")
	}
	return nil
}

// Init builds a logger from cfg and installs it as the slog default.
func Init(cfg Config) error {
	logger, err := New(cfg, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// New builds a logger writing to stdout and the rotating file, if any.
func New(cfg Config, stdout io.Writer) (*slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := stdout
	if strings.TrimSpace(cfg.Path) != "" {
		fileWriter, err := rotatingWriter(cfg)
		if err != nil {
			return nil, errors.WithMessage(err, "configure file logger")
		}
		out = io.MultiWriter(stdout, fileWriter)
	}

	opts := &slog.HandlerOptions{
		Level: mapLevel(cfg.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format("2006-01-02 15:04:05.000000"))
				}
			}
			return a
		},
	}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	}
	return slog.New(slog.NewTextHandler(out, opts)), nil
}

func rotatingWriter(cfg Config) (*rotatelogs.RotateLogs, error) {
	rotation, err := time.ParseDuration(cfg.RotationTime)
	if err != nil {
		return nil, err
	}
	maxAge, err := time.ParseDuration(cfg.MaxAge)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, err
	}
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	return rotatelogs.New(
		filepath.Join(cfg.Path, pattern),
		rotatelogs.WithRotationTime(rotation),
		rotatelogs.WithMaxAge(maxAge),
	)
}

func mapLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the default logger tagged with a module attribute.
func Logger(module string) *slog.Logger {
	return slog.Default().With("module", module)
}
