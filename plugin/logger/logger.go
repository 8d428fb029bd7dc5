// Package logger configures logrus as the backend of the apex/log default
// logger
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/sirupsen/logrus"
)

const (
	level      = "level"
	format     = "format"
	outputFile = "output-file"

	jsonFormat = "json"
	textFormat = "text"
)

type parseLogField func(*logrus.Logger, string) error

var logFieldMap = map[string]parseLogField{
	level:      parseLogLevel,
	format:     parseLogFormat,
	outputFile: parseOutputFile,
}

// Handler forwards apex/log entries to a logrus logger
type Handler struct {
	Logger *logrus.Logger
}

// New returns a logrus logger with the defaults used when no logger
// block is configured
func New() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{})
	l.SetOutput(os.Stdout)

	return l
}

// HandleLog implements log.Handler
func (h *Handler) HandleLog(e *log.Entry) error {
	entry := h.Logger.WithFields(logrus.Fields(e.Fields)).WithTime(e.Timestamp)

	switch e.Level {
	case log.DebugLevel:
		entry.Debug(e.Message)
	case log.InfoLevel:
		entry.Info(e.Message)
	case log.WarnLevel:
		entry.Warn(e.Message)
	case log.ErrorLevel:
		entry.Error(e.Message)
	case log.FatalLevel:
		// logrus would exit the process
		entry.Log(logrus.FatalLevel, e.Message)
	default:
		return fmt.Errorf("unknown log level %d", e.Level)
	}

	return nil
}

func parseLog(l *logrus.Logger, name string, values []string) error {
	fn, ok := logFieldMap[name]
	if !ok {
		return fmt.Errorf("unknown logger setting %q", name)
	}

	if len(values) != 1 {
		return fmt.Errorf("%s expects exactly one value", name)
	}

	return fn(l, values[0])
}

func parseLogLevel(l *logrus.Logger, value string) error {
	lvl, err := logrus.ParseLevel(value)
	if err != nil {
		return err
	}

	l.SetLevel(lvl)
	return nil
}

func parseLogFormat(l *logrus.Logger, value string) error {
	switch value {
	case jsonFormat:
		l.SetFormatter(&logrus.JSONFormatter{})
	case textFormat:
		l.SetFormatter(&logrus.TextFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", value)
	}

	return nil
}

var openFile = func(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
}

// closeOutput closes the output file of l and switches it back to
// stdout. Standard streams are never closed
func closeOutput(l *logrus.Logger) error {
	out := l.Out
	if out == os.Stdout || out == os.Stderr {
		return nil
	}

	l.SetOutput(os.Stdout)

	if c, ok := out.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func parseOutputFile(l *logrus.Logger, value string) error {
	var (
		w   io.Writer
		err error
	)

	switch value {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		w, err = openFile(value)
		if err != nil {
			return err
		}
	}

	if err := closeOutput(l); err != nil {
		return err
	}

	l.SetOutput(w)
	return nil
}
