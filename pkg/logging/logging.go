// Package logging builds the logrus logger shared by commands and the
// simulation driver.
package logging

import (
	"errors"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// Config selects level and output format.
type Config struct {
	Level  string // debug | info | warn | error
	Format string // text | json
	Output io.Writer
}

// New returns a configured logger. An unknown level falls back to info.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	if cfg.Output != nil {
		logger.SetOutput(cfg.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// WithError attaches err and, for coded errors, its code and context.
func WithError(entry *logrus.Entry, err error) *logrus.Entry {
	entry = entry.WithError(err)
	var se *serrors.SimlogError
	if errors.As(err, &se) {
		fields := logrus.Fields{"code": se.Code}
		for k, v := range se.Context {
			fields[k] = v
		}
		entry = entry.WithFields(fields)
	}
	return entry
}
