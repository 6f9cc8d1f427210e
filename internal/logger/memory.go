package logger

import (
	"fmt"
	"sync"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelDebug   Level = "debug"
	LevelError   Level = "error"
	LevelSQL     Level = "sql"
)

type Entry struct {
	Level   Level
	Message string
}

// MemoryLogger keeps every line it receives, useful for embedding and tests
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Logger = (*MemoryLogger)(nil)

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (ml *MemoryLogger) Infof(format string, args ...interface{}) {
	ml.write(LevelInfo, fmt.Sprintf(format, args...))
}

func (ml *MemoryLogger) Successf(format string, args ...interface{}) {
	ml.write(LevelSuccess, fmt.Sprintf(format, args...))
}

func (ml *MemoryLogger) Debugf(format string, args ...interface{}) {
	ml.write(LevelDebug, fmt.Sprintf(format, args...))
}

func (ml *MemoryLogger) Error(err error) {
	ml.write(LevelError, err.Error())
}

func (ml *MemoryLogger) SQL(query string, args ...interface{}) {
	ml.write(LevelSQL, formatSQL(query, args...))
}

// Entries returns a copy of all the lines received so far, optionally only of given levels
func (ml *MemoryLogger) Entries(levels ...Level) []Entry {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	result := make([]Entry, 0, len(ml.entries))
	for _, e := range ml.entries {
		if len(levels) == 0 || hasLevel(levels, e.Level) {
			result = append(result, e)
		}
	}

	return result
}

// Messages returns the text of the lines of the given levels
func (ml *MemoryLogger) Messages(levels ...Level) []string {
	entries := ml.Entries(levels...)
	result := make([]string, len(entries))
	for i := range entries {
		result[i] = entries[i].Message
	}

	return result
}

func (ml *MemoryLogger) HasMessage(msg string) bool {
	for _, m := range ml.Messages() {
		if m == msg {
			return true
		}
	}

	return false
}

func (ml *MemoryLogger) Reset() {
	ml.mu.Lock()
	ml.entries = nil
	ml.mu.Unlock()
}

func (ml *MemoryLogger) write(l Level, msg string) {
	ml.mu.Lock()
	ml.entries = append(ml.entries, Entry{Level: l, Message: msg})
	ml.mu.Unlock()
}

func hasLevel(levels []Level, l Level) bool {
	for i := range levels {
		if levels[i] == l {
			return true
		}
	}

	return false
}
