// Package testutil holds test doubles shared across packages.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

// LogEntry is one recorded log call.
type LogEntry struct {
	Level   logging.Level
	Logger  string
	Message string
	Fields  []logging.Field
}

// Field returns the value of key, searching the entry's own fields last so
// they override inherited ones.
func (e LogEntry) Field(key string) (any, bool) {
	var (
		v     any
		found bool
	)
	for _, f := range e.Fields {
		if f.Key == key {
			v, found = f.Value, true
		}
	}
	return v, found
}

type sink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// RecordingLogger implements logging.Logger and keeps every entry in memory.
// Children made with With or Named write to the same record.
type RecordingLogger struct {
	sink   *sink
	name   string
	fields []logging.Field
}

var _ logging.Logger = (*RecordingLogger)(nil)

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{sink: &sink{}}
}

func (l *RecordingLogger) log(level logging.Level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)
	l.sink.mu.Lock()
	l.sink.entries = append(l.sink.entries, LogEntry{Level: level, Logger: l.name, Message: msg, Fields: all})
	l.sink.mu.Unlock()
}

func (l *RecordingLogger) Debug(msg string, fields ...logging.Field) { l.log(logging.LevelDebug, msg, fields) }
func (l *RecordingLogger) Info(msg string, fields ...logging.Field)  { l.log(logging.LevelInfo, msg, fields) }
func (l *RecordingLogger) Warn(msg string, fields ...logging.Field)  { l.log(logging.LevelWarn, msg, fields) }
func (l *RecordingLogger) Error(msg string, fields ...logging.Field) { l.log(logging.LevelError, msg, fields) }

// Fatal records at error level and does not exit.
func (l *RecordingLogger) Fatal(msg string, fields ...logging.Field) {
	l.log(logging.LevelError, msg, fields)
}

func (l *RecordingLogger) With(fields ...logging.Field) logging.Logger {
	child := *l
	child.fields = append(append([]logging.Field{}, l.fields...), fields...)
	return &child
}

func (l *RecordingLogger) Named(name string) logging.Logger {
	child := *l
	if l.name == "" {
		child.name = name
	} else {
		child.name = l.name + "." + name
	}
	return &child
}

func (l *RecordingLogger) WithContext(context.Context) logging.Logger { return l }

func (l *RecordingLogger) WithError(err error) logging.Logger {
	if err == nil {
		return l
	}
	return l.With(logging.Err(err))
}

func (l *RecordingLogger) Sync() error { return nil }

// Entries returns a copy of everything recorded so far.
func (l *RecordingLogger) Entries() []LogEntry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	out := make([]LogEntry, len(l.sink.entries))
	copy(out, l.sink.entries)
	return out
}

// Find returns the first entry at level whose message contains substr.
func (l *RecordingLogger) Find(level logging.Level, substr string) (LogEntry, bool) {
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return e, true
		}
	}
	return LogEntry{}, false
}

func (l *RecordingLogger) Reset() {
	l.sink.mu.Lock()
	l.sink.entries = nil
	l.sink.mu.Unlock()
}

//Personal.AI order the ending
