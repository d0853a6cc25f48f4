// Package testutil provides shared test doubles for use across package tests.
package testutil

import (
	"sync"

	"github.com/raysh454/auditai/internal/logging"
)

// LogEntry is one message recorded by DummyLogger.
type LogEntry struct {
	Level   string
	Message string
	Fields  []logging.Field
}

type logStore struct {
	mu      sync.Mutex
	entries []LogEntry
}

// DummyLogger implements logging.Logger by recording every message in
// memory. The zero value is ready to use; loggers derived with With share
// the same record.
type DummyLogger struct {
	once   sync.Once
	store  *logStore
	fields []logging.Field
}

func (l *DummyLogger) log() *logStore {
	l.once.Do(func() {
		if l.store == nil {
			l.store = &logStore{}
		}
	})
	return l.store
}

func (l *DummyLogger) record(level, msg string, fields []logging.Field) {
	store := l.log()
	all := make([]logging.Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	store.mu.Lock()
	defer store.mu.Unlock()
	store.entries = append(store.entries, LogEntry{Level: level, Message: msg, Fields: all})
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) { l.record("debug", msg, fields) }
func (l *DummyLogger) Info(msg string, fields ...logging.Field)  { l.record("info", msg, fields) }
func (l *DummyLogger) Warn(msg string, fields ...logging.Field)  { l.record("warn", msg, fields) }
func (l *DummyLogger) Error(msg string, fields ...logging.Field) { l.record("error", msg, fields) }

// With returns a logger sharing this one's record whose entries carry
// fields in addition to the parent's.
func (l *DummyLogger) With(fields ...logging.Field) logging.Logger {
	return &DummyLogger{store: l.log(), fields: append(append([]logging.Field{}, l.fields...), fields...)}
}

// Entries returns a copy of everything recorded so far.
func (l *DummyLogger) Entries() []LogEntry {
	store := l.log()
	store.mu.Lock()
	defer store.mu.Unlock()
	return append([]LogEntry(nil), store.entries...)
}

// Messages returns the recorded messages of one level.
func (l *DummyLogger) Messages(level string) []string {
	var out []string
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}
