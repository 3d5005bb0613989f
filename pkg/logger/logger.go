package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog wrapper with typed fields. Children created with With
// or Component share the parent's collector.
type Logger struct {
	zl        zerolog.Logger
	component string
	collector *atomic.Pointer[LogCollector]
}

type Config struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
	Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"` // stdout, stderr or a file path
	TimeFormat string `yaml:"time_format"`
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().CallerWithSkipFrameCount(4).Logger()
	return &Logger{zl: zl, collector: new(atomic.Pointer[LogCollector])}, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), collector: new(atomic.Pointer[LogCollector])}
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.key, f.val)
	}
	return &Logger{zl: ctx.Logger(), component: l.component, collector: l.collector}
}

// Component tags entries with component=name; the collector groups by it.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger(), component: name, collector: l.collector}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(l.zl.Debug(), "", msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(l.zl.Info(), "", msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(l.zl.Warn(), "warn", msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(l.zl.Error(), "error", msg, fields) }

func (l *Logger) write(ev *zerolog.Event, collect, msg string, fields []Field) {
	if ev != nil {
		for _, f := range fields {
			f.apply(ev)
		}
		ev.Msg(msg)
	}
	if collect == "" || l.collector == nil {
		return
	}
	if c := l.collector.Load(); c != nil {
		c.AddLog(collect, l.component, msg, fieldMap(fields))
	}
}

// AddCollector starts aggregating warnings and errors, replacing any
// previous collector.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if l.collector == nil {
		l.collector = new(atomic.Pointer[LogCollector])
	}
	if old := l.collector.Swap(NewLogCollector(cfg)); old != nil {
		old.Close()
	}
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if l.collector == nil {
		return
	}
	if old := l.collector.Swap(nil); old != nil {
		old.Close()
	}
}

// Field is one structured key/value.
type Field struct {
	key   string
	val   interface{}
	apply func(*zerolog.Event)
}

func (f Field) Key() string { return f.key }

// Value is what the collector records for the field.
func (f Field) Value() interface{} { return f.val }

func fieldMap(fields []Field) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.key] = f.val
	}
	return m
}

func String(key, v string) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Str(key, v) }}
}

func Strings(key string, v []string) Field {
	return Field{key, strings.Join(v, ", "), func(e *zerolog.Event) { e.Strs(key, v) }}
}

func Int(key string, v int) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Int(key, v) }}
}

func Int64(key string, v int64) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Int64(key, v) }}
}

func Float64(key string, v float64) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Float64(key, v) }}
}

func Bool(key string, v bool) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Bool(key, v) }}
}

// Duration is logged in milliseconds.
func Duration(key string, v time.Duration) Field {
	ms := v.Milliseconds()
	return Field{key, ms, func(e *zerolog.Event) { e.Int64(key, ms) }}
}

func Time(key string, v time.Time) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Time(key, v) }}
}

func Error(err error) Field {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Field{"error", msg, func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, v interface{}) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Interface(key, v) }}
}
