// Package dsynclog provides the structured, leveled logging used by every
// dsync component. It is a thin adaptation of the host application's own
// logrus conventions: fields over format strings, a context-scoped
// logger that accumulates fields via WithField/WithFields.
package dsynclog

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Level mirrors the handful of levels dsync components actually select.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config controls how the base *logrus.Logger is constructed.
type Config struct {
	Level     Level
	Format    string // "json" or "text"
	Component string
}

// DefaultConfig returns sensible defaults: info level, text format.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: "text", Component: "dsync"}
}

// New builds a *logrus.Logger per Config.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Level {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}

	return logger
}

// Logger carries a base *logrus.Logger plus an accumulated field set, the
// way a per-component logger threads a "source" or "processor" field
// through every call without every call site re-declaring it.
type Logger struct {
	base   *logrus.Logger
	fields logrus.Fields
}

// ForComponent returns a Logger pre-tagged with a "component" field.
func ForComponent(base *logrus.Logger, component string) *Logger {
	if base == nil {
		base = New(DefaultConfig())
	}
	return &Logger{base: base, fields: logrus.Fields{"component": component}}
}

// WithField returns a derived Logger with one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(logrus.Fields{key: value})
}

// WithFields returns a derived Logger with additional fields merged in.
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{base: l.base, fields: merged}
}

// WithError returns a derived Logger carrying the error's message.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) entry() *logrus.Entry { return l.base.WithFields(l.fields) }

func (l *Logger) Debug(msg string) { l.entry().Debug(msg) }
func (l *Logger) Info(msg string)  { l.entry().Info(msg) }
func (l *Logger) Warn(msg string)  { l.entry().Warn(msg) }
func (l *Logger) Error(msg string) { l.entry().Error(msg) }

// Debugf, Infof, Warnf, Errorf mirror the unformatted variants for sites
// that build their message inline rather than via WithField.
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry().Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry().Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry().Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry().Errorf(format, args...) }
