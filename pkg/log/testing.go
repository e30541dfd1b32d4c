package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// sink is the buffer shared by a TestLogger and every logger derived from it
// through With.
type sink struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (s *sink) add(rec map[string]interface{}) {
	line, _ := json.Marshal(rec)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(line)
	s.buf.WriteByte('\n')
}

// TestLogger writes every record to an in-memory buffer as one JSON line.
type TestLogger struct {
	out    *sink
	level  Level
	fields map[string]interface{}
}

// NewTestLogger returns a logger that keeps records at or above level.
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	s := &sink{buf: &bytes.Buffer{}}
	return &TestLogger{out: s, level: level, fields: map[string]interface{}{}}, s.buf
}

func (t *TestLogger) Debug(msg string, fields ...any) { t.log(LevelDebug, msg, fields) }
func (t *TestLogger) Info(msg string, fields ...any)  { t.log(LevelInfo, msg, fields) }
func (t *TestLogger) Warn(msg string, fields ...any)  { t.log(LevelWarn, msg, fields) }
func (t *TestLogger) Error(msg string, fields ...any) { t.log(LevelError, msg, fields) }

func (t *TestLogger) With(fields ...any) Logger {
	child := &TestLogger{out: t.out, level: t.level, fields: make(map[string]interface{}, len(t.fields))}
	for k, v := range t.fields {
		child.fields[k] = v
	}
	putPairs(child.fields, fields)
	return child
}

func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	return level >= t.level
}

func (t *TestLogger) log(level Level, msg string, fields []any) {
	if !t.Enabled(context.Background(), level) {
		return
	}
	rec := map[string]interface{}{"level": level.String(), "message": msg}
	for k, v := range t.fields {
		rec[k] = v
	}
	// Error(msg, err, k, v...) の形式
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			rec[ErrAttrKey] = err.Error()
			fields = fields[1:]
		}
	}
	putPairs(rec, fields)
	t.out.add(rec)
}

func putPairs(dst map[string]interface{}, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		v := kv[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		dst[fmt.Sprint(kv[i])] = v
	}
}

// GetLogEntries returns the captured records decoded from their JSON form,
// so numbers come back as float64.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	t.out.mu.Lock()
	defer t.out.mu.Unlock()
	dec := json.NewDecoder(bytes.NewReader(t.out.buf.Bytes()))
	var entries []map[string]interface{}
	for dec.More() {
		var e map[string]interface{}
		if err := dec.Decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ContainsField reports whether some record has key set to value.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, e := range entries {
		if v, ok := e[key]; ok && v == value {
			return true
		}
	}
	return false
}

// TestLoggerProvider hands out loggers that all write to one TestLogger.
type TestLoggerProvider struct {
	root *TestLogger
}

func NewTestLoggerProvider(level Level) (*TestLoggerProvider, *bytes.Buffer) {
	l, buf := NewTestLogger(level)
	return &TestLoggerProvider{root: l}, buf
}

func (p *TestLoggerProvider) GetLogger() Logger { return p.root }

func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.root.With(ComponentKey, name)
}

func (p *TestLoggerProvider) SetLevel(level Level) { p.root.level = level }
