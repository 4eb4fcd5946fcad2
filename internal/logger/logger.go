// Package logger provides structured logging on top of zap together with a
// thread-safe in-memory ring of recent messages for the status endpoint.
package logger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Message represents a single log message
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Level     string    `json:"level"` // info, warning, error
}

// Options selects the zap encoder and level.
type Options struct {
	Development bool   `json:"development" yaml:"development"`
	Level       string `json:"level" yaml:"level"`
}

// Logger writes through zap and keeps the last maxSize messages in memory.
type Logger struct {
	mu       sync.RWMutex
	messages []Message
	maxSize  int
	zl       *zap.Logger
}

// New creates a logger that only feeds the in-memory ring. Tests use it.
func New(maxSize int) *Logger {
	l := &Logger{
		messages: make([]Message, 0, maxSize),
		maxSize:  maxSize,
	}
	l.zl = zap.New(&ringCore{ring: l, level: zapcore.DebugLevel})
	return l
}

// NewWithOptions builds a zap production (or development) logger teed into
// the in-memory ring.
func NewWithOptions(maxSize int, opts Options) (*Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	ringLevel := cfg.Level.Level()
	if ringLevel < zapcore.InfoLevel {
		ringLevel = zapcore.InfoLevel
	}

	l := &Logger{
		messages: make([]Message, 0, maxSize),
		maxSize:  maxSize,
	}
	base, err := cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, &ringCore{ring: l, level: ringLevel})
	}))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	l.zl = base
	return l, nil
}

// Zap exposes the structured logger for components that log with fields.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Named returns a child zap logger scoped to a component.
func (l *Logger) Named(name string) *zap.Logger {
	return l.zl.Named(name)
}

// Sync flushes buffered zap output.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Log adds a message at the named level ("info", "warning", "error").
func (l *Logger) Log(level, text string, fields ...zap.Field) {
	switch level {
	case "error":
		l.zl.Error(text, fields...)
	case "warning", "warn":
		l.zl.Warn(text, fields...)
	default:
		l.zl.Info(text, fields...)
	}
}

// Info logs an info-level message
func (l *Logger) Info(text string, fields ...zap.Field) {
	l.zl.Info(text, fields...)
}

// Warning logs a warning-level message
func (l *Logger) Warning(text string, fields ...zap.Field) {
	l.zl.Warn(text, fields...)
}

// Error logs an error-level message
func (l *Logger) Error(text string, fields ...zap.Field) {
	l.zl.Error(text, fields...)
}

func (l *Logger) append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
	if len(l.messages) > l.maxSize {
		l.messages = l.messages[len(l.messages)-l.maxSize:]
	}
}

// GetRecent returns the most recent n messages (newest first)
func (l *Logger) GetRecent(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.messages) || n < 0 {
		n = len(l.messages)
	}

	result := make([]Message, n)
	for i := 0; i < n; i++ {
		result[i] = l.messages[len(l.messages)-1-i]
	}
	return result
}

// GetAll returns all messages (newest first)
func (l *Logger) GetAll() []Message {
	return l.GetRecent(-1)
}

// ringCore is a zapcore.Core that renders entries as single lines into the
// owning Logger's ring.
type ringCore struct {
	ring   *Logger
	level  zapcore.Level
	fields []zapcore.Field
}

func (c *ringCore) Enabled(lvl zapcore.Level) bool { return lvl >= c.level }

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &ringCore{ring: c.ring, level: c.level, fields: merged}
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	text := ent.Message
	if ent.LoggerName != "" {
		text = ent.LoggerName + ": " + text
	}
	if len(enc.Fields) > 0 {
		keys := make([]string, 0, len(enc.Fields))
		for k := range enc.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, enc.Fields[k]))
		}
		text += " " + strings.Join(parts, " ")
	}

	c.ring.append(Message{
		Timestamp: ent.Time,
		Text:      text,
		Level:     levelName(ent.Level),
	})
	return nil
}

func (c *ringCore) Sync() error { return nil }

func levelName(lvl zapcore.Level) string {
	switch {
	case lvl >= zapcore.ErrorLevel:
		return "error"
	case lvl == zapcore.WarnLevel:
		return "warning"
	default:
		return "info"
	}
}
