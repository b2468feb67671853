package logging

// Logger is the logging contract used across the supervisor. Components
// receive a Logger rather than a concrete backend.
type Logger interface {
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
}

type prefixLogger struct {
	prefix string
	inner  Logger
}

// NewLogger wraps an existing logger so every message carries a fixed prefix.
func NewLogger(prefix string, inner Logger) Logger {
	if prefix != "" {
		prefix = prefix + ": "
	}
	return &prefixLogger{
		prefix: prefix,
		inner:  inner,
	}
}

func (l *prefixLogger) Debugf(msg string, args ...interface{}) {
	l.inner.Debugf(l.prefix+msg, args...)
}

func (l *prefixLogger) Infof(msg string, args ...interface{}) {
	l.inner.Infof(l.prefix+msg, args...)
}

func (l *prefixLogger) Warnf(msg string, args ...interface{}) {
	l.inner.Warnf(l.prefix+msg, args...)
}

func (l *prefixLogger) Errorf(msg string, args ...interface{}) {
	l.inner.Errorf(l.prefix+msg, args...)
}

type nullLogger struct{}

// NewNullLogger returns a logger that discards everything. Intended for tests.
func NewNullLogger() Logger {
	return &nullLogger{}
}

func (l *nullLogger) Debugf(msg string, args ...interface{}) {}
func (l *nullLogger) Infof(msg string, args ...interface{})  {}
func (l *nullLogger) Warnf(msg string, args ...interface{})  {}
func (l *nullLogger) Errorf(msg string, args ...interface{}) {}
