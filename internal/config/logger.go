// ABOUTME: Logger setup from the logging section of the config
// ABOUTME: TUI mode logs only to the file, streaming mode also to stdout
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogger applies level, format and output to logger. The returned
// closer releases the log file.
func SetupLogger(logger *logrus.Logger, cfg LoggingConfig, console bool) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: !console,
		})
	}

	var file *os.File
	if cfg.File != "" {
		file, err = os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
	}

	switch {
	case console && file != nil:
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
	case console:
		logger.SetOutput(os.Stdout)
	case file != nil:
		logger.SetOutput(file)
	default:
		logger.SetOutput(io.Discard)
	}

	if file == nil {
		return nopCloser{}, nil
	}
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
