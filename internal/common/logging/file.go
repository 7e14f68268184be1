package logging

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig defines optional logging to a rotated file, in addition to stdout.
type FileConfig struct {
	// Whether file logging is enabled.
	Enabled bool
	// The Location of the logfile on disk
	LogFile string
	// Maximum size in megabytes of the log file before it gets rotated
	MaxSizeMb int
	// Maximum number of old log files to retain
	MaxBackups int
	// Maximum number of days to retain old log files
	MaxAgeDays int
	// Whether to compress rotated log files
	Compress bool
}

func (c FileConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.LogFile == "" {
		return errors.New("logfile must be set when file logging is enabled")
	}
	if c.MaxSizeMb <= 0 {
		return errors.New("maxSizeMb must be greater than zero")
	}
	if c.MaxBackups <= 0 {
		return errors.New("maxBackups must be greater than zero")
	}
	if c.MaxAgeDays <= 0 {
		return errors.New("maxAgeDays must be greater than zero")
	}
	return nil
}

// NewFileWriter returns a writer that rotates the configured logfile using lumberjack.
func NewFileWriter(c FileConfig) (io.WriteCloser, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.MaxSizeMb,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}, nil
}
