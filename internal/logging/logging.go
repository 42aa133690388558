// Package logging sets up the process-wide logrus logger
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logLevels = map[string]logrus.Level{
	"trace": logrus.TraceLevel,
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
	"fatal": logrus.FatalLevel,
	"panic": logrus.PanicLevel,
}

// Options configures New
type Options struct {
	Level string
	File  string    // if set, output is also written to this file with rotation
	Out   io.Writer // defaults to os.Stdout
}

// New returns a logger configured from opts
func New(opts Options) (*logrus.Logger, error) {
	if opts.Level == "" {
		opts.Level = "info"
	}
	level, ok := logLevels[opts.Level]
	if !ok {
		return nil, fmt.Errorf("log level definition not found for '%s'", opts.Level)
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.File != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    5, // megabytes
			MaxBackups: 7,
			MaxAge:     7, // days
			LocalTime:  true,
		})
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(out)
	logger.SetLevel(level)
	if level >= logrus.DebugLevel {
		logger.SetReportCaller(true)
	}
	return logger, nil
}

// Discard returns a logger that drops everything, for tests
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
