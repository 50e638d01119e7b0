// Package logging provides the structured, leveled logger every component
// builds its log lines through, keyed on the identifiers §6's telemetry-sink
// contract names: clientId, configurationId, executionId, correlationId,
// protocol.
//
// Enrichment pick: github.com/sirupsen/logrus, attested across the retrieval
// pack (jordigilh-kubernaut, rcourtman-Pulse) rather than aistore's own
// vendored 3rdparty/glog fork, which isn't importable as an ordinary module
// dependency outside its origin tree.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Entry, accumulating the identifying fields as
// components hand it down the call chain via With*.
type Logger struct {
	entry *logrus.Entry
}

// New builds a root Logger writing level-appropriate JSON lines to w (os.Stdout
// in production, a buffer in tests).
func New(levelName string, w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)
	return &Logger{entry: logrus.NewEntry(base)}
}

// Default returns a Logger at Info level writing to stdout, for entrypoints
// that have not yet loaded configuration.
func Default() *Logger { return New("info", os.Stdout) }

func (l *Logger) WithClient(clientID string) *Logger {
	return &Logger{entry: l.entry.WithField("clientId", clientID)}
}

func (l *Logger) WithConfiguration(configurationID string) *Logger {
	return &Logger{entry: l.entry.WithField("configurationId", configurationID)}
}

func (l *Logger) WithExecution(executionID string) *Logger {
	return &Logger{entry: l.entry.WithField("executionId", executionID)}
}

func (l *Logger) WithCorrelation(correlationID string) *Logger {
	return &Logger{entry: l.entry.WithField("correlationId", correlationID)}
}

func (l *Logger) WithProtocol(protocol string) *Logger {
	return &Logger{entry: l.entry.WithField("protocol", protocol)}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
