package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config overrides the environment preset from the process environment.
// Empty fields keep the preset's value.
type Config struct {
	Level  string `env:"LOG_LEVEL"`  // debug, info, warn, error
	Format string `env:"LOG_FORMAT"` // json or text
}

// ParseLevel accepts slog level names in any case, including offsets such as "warn+2".
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	return l, nil
}

// Options validates cfg and turns it into logger options.
func (cfg Config) Options() ([]Option, error) {
	var opts []Option
	if cfg.Level != "" {
		level, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLevel(level))
	}
	if cfg.Format != "" {
		f := Format(strings.ToLower(cfg.Format))
		if f != FormatJSON && f != FormatText {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, cfg.Format)
		}
		opts = append(opts, WithFormat(f))
	}
	return opts, nil
}
