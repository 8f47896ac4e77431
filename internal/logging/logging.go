// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"time"

	"journal-relay/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Configure applies level, format and output to logger. When a log file is
// configured the returned closer releases it, otherwise it is a no-op.
func Configure(logger *logrus.Logger, cfg config.LoggingConfig) io.Closer {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetReportCaller(cfg.ReportCaller)

	if cfg.File == "" {
		logger.SetOutput(os.Stdout)
		return nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
