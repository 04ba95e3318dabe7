// Package logging builds the go-kit loggers used across the service.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Config selects output format and minimum level.
type Config struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // logfmt or json
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "logfmt"}
}

// New creates a logger that writes to w with timestamp and caller keys.
func New(w io.Writer, cfg Config) (log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	var logger log.Logger
	switch strings.ToLower(cfg.Format) {
	case "", "logfmt":
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case "json":
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	opt, err := levelOption(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger = level.NewFilter(logger, opt)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return logger, nil
}

func levelOption(name string) (level.Option, error) {
	switch strings.ToLower(name) {
	case "debug":
		return level.AllowDebug(), nil
	case "", "info":
		return level.AllowInfo(), nil
	case "warn", "warning":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	}
	return nil, fmt.Errorf("unknown log level %q", name)
}

// Component tags a logger with the subsystem emitting it.
func Component(logger log.Logger, name string) log.Logger {
	if logger == nil {
		return log.NewNopLogger()
	}
	return log.With(logger, "component", name)
}

// Timed logs msg with the elapsed time since start at info level, or at
// error level when err is non-nil.
func Timed(logger log.Logger, start time.Time, msg string, err error, keyvals ...interface{}) {
	kv := append([]interface{}{"msg", msg, "took", time.Since(start)}, keyvals...)
	if err != nil {
		level.Error(logger).Log(append(kv, "err", err)...)
		return
	}
	level.Info(logger).Log(kv...)
}
