// Package logging configures the logrus logger used by the command-line tool.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options mirror the log section of the config file.
type Options struct {
	Level  string
	Format string
	// Output is "stdout", "stderr" or a file path. Files rotate when
	// MaxAgeDays is positive.
	Output     string
	MaxAgeDays int
}

// New builds a logger. LOG_LEVEL overrides opts.Level. The returned closer
// releases the log file, if any; callers close it once logging is done.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := opts.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q", level)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(opts.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	out, err := output(opts.Output, opts.MaxAgeDays)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(out)
	return logger, out, nil
}

type stdStream struct{ io.Writer }

// Close leaves the process streams open.
func (stdStream) Close() error { return nil }

// Logs go to stderr by default so stdout carries only command output.
func output(dest string, maxAge int) (io.WriteCloser, error) {
	switch dest {
	case "stderr", "":
		return stdStream{os.Stderr}, nil
	case "stdout":
		return stdStream{os.Stdout}, nil
	}
	if maxAge > 0 {
		return &lumberjack.Logger{
			Filename: dest,
			MaxAge:   maxAge,
			MaxSize:  100,
			Compress: true,
		}, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", dest, err)
	}
	return f, nil
}

// WithComponent tags entries with the subsystem that produced them.
func WithComponent(l logrus.FieldLogger, component string) *logrus.Entry {
	return l.WithField("component", component)
}
