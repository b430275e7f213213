// Package obs is the injected logging and error-reporting collaborator
// shared by every component. Nothing in this package is specific to
// the shared-memory transport; components take a *Logger through their
// constructors rather than reaching for the global one.
package obs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log record.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

var levelNames = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
	Fatal: "FATAL",
}

// Field is a structured key-value pair attached to a log record.
type Field struct {
	Key   string
	Value interface{}
}

func (f Field) format() string {
	switch v := f.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func String(key, value string) Field   { return Field{key, value} }
func Int(key string, v int) Field      { return Field{key, v} }
func Int64(key string, v int64) Field  { return Field{key, v} }
func Uint32(key string, v uint32) Field { return Field{key, v} }
func Uint64(key string, v uint64) Field { return Field{key, v} }
func Bool(key string, v bool) Field    { return Field{key, v} }
func Err(err error) Field              { return Field{"error", err} }
func Duration(key string, v time.Duration) Field { return Field{key, v} }
func Any(key string, v interface{}) Field        { return Field{key, v} }

// Logger is a small structured logger: one line per record,
// "[time] [LEVEL] [component] msg key=val ...". It carries sticky
// fields added via With, unlike a bare fmt.Printf wrapper.
type Logger struct {
	mu         sync.Mutex
	level      Level
	component  string
	output     io.Writer
	timeFormat string
	sticky     []Field
}

// Config configures a new Logger.
type Config struct {
	Level      Level
	Component  string
	Output     io.Writer
	TimeFormat string
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "15:04:05.000"
	}
	return &Logger{
		level:      cfg.Level,
		component:  cfg.Component,
		output:     cfg.Output,
		timeFormat: cfg.TimeFormat,
	}
}

// Default returns an Info-level logger writing to stderr.
func Default(component string) *Logger {
	return New(Config{Level: Info, Component: component})
}

// With returns a derived logger carrying the given fields on every
// subsequent record, in addition to this logger's own sticky fields.
func (l *Logger) With(fields ...Field) *Logger {
	merged := make([]Field, 0, len(l.sticky)+len(fields))
	merged = append(merged, l.sticky...)
	merged = append(merged, fields...)
	return &Logger{
		level:      l.level,
		component:  l.component,
		output:     l.output,
		timeFormat: l.timeFormat,
		sticky:     merged,
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(Error, msg, fields...) }

// Fatal logs at FATAL and runs the registered abort hook (os.Exit(1)
// by default). See SetAbortHook for why this is a hook rather than a
// direct os.Exit call.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.log(Fatal, msg, fields...)
	Abort()
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(time.Now().Format(l.timeFormat))
	b.WriteString("] [")
	b.WriteString(fmt.Sprintf("%-5s", levelNames[level]))
	b.WriteString("]")
	if l.component != "" {
		b.WriteString(" [")
		b.WriteString(l.component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)

	all := append(append([]Field{}, l.sticky...), fields...)
	for _, f := range all {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.format())
	}
	b.WriteString("\n")

	l.output.Write([]byte(b.String()))
}

var (
	globalMu     sync.Mutex
	globalLogger = Default("shmrpc")
)

// SetGlobal replaces the package-level logger used by the package-level
// DebugG/InfoG/WarnG/ErrorG helpers and returned by Global.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

func global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalLogger
}

func Global() *Logger                          { return global() }
func DebugG(msg string, fields ...Field) { global().Debug(msg, fields...) }
func InfoG(msg string, fields ...Field)  { global().Info(msg, fields...) }
func WarnG(msg string, fields ...Field)  { global().Warn(msg, fields...) }
func ErrorG(msg string, fields ...Field) { global().Error(msg, fields...) }
