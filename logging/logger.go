// Package logging 提供统一的日志接口抽象
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l >= DebugLevel && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel 解析级别名称（大小写不敏感），无法识别时返回 InfoLevel
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 返回附带固定字段的新 Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field            { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Any(key string, value any) Field                { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Error(err error) Field                          { return Field{Key: "error", Value: err} }

// Strings 以逗号拼接
func Strings(key string, value []string) Field {
	return Field{Key: key, Value: strings.Join(value, ",")}
}

type (
	ctxFieldsKey struct{}
	ctxLoggerKey struct{}
)

// ContextWithLogger 让 ctx 下游（如错误包装）使用 logger 而不是全局 Logger
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}

// FromContext 返回 ctx 上的 Logger，没有时返回全局 Logger
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLoggerKey{}).(Logger); ok {
			return l
		}
	}
	return GetLogger()
}

// NewContext 把字段挂到 ctx 上，StdLogger 输出时追加在调用字段之前
func NewContext(ctx context.Context, fields ...Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return context.WithValue(ctx, ctxFieldsKey{}, append(FieldsFromContext(ctx), fields...))
}

// FieldsFromContext 返回 ctx 上的字段副本
func FieldsFromContext(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(ctxFieldsKey{}).([]Field)
	return append([]Field(nil), fields...)
}

// StdLogger 基于标准库 log 的实现，低于 level 的日志直接丢弃
type StdLogger struct {
	out    *log.Logger
	prefix string
	level  Level
	fields []Field
}

// NewStdLogger 输出到 stderr，默认输出全部级别
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{
		out:    log.New(os.Stderr, "", log.LstdFlags),
		prefix: prefix,
		level:  DebugLevel,
	}
}

// WithLevel 返回设置了最低级别的新 Logger
func (l *StdLogger) WithLevel(level Level) *StdLogger {
	c := *l
	c.level = level
	return &c
}

// WithOutput 返回写入 w 的新 Logger
func (l *StdLogger) WithOutput(w io.Writer) *StdLogger {
	c := *l
	c.out = log.New(w, "", l.out.Flags())
	return &c
}

func (l *StdLogger) format(ctx context.Context, level Level, msg string, fields []Field) string {
	var sb strings.Builder
	sb.WriteString("[" + level.String() + "] ")
	if l.prefix != "" {
		sb.WriteString(l.prefix + " ")
	}
	sb.WriteString(msg)
	for _, group := range [][]Field{l.fields, FieldsFromContext(ctx), fields} {
		for _, f := range group {
			sb.WriteString(" " + f.Key + "=" + formatValue(f.Value))
		}
	}
	return sb.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}

func (l *StdLogger) output(ctx context.Context, level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	l.out.Println(l.format(ctx, level, msg, fields))
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.output(ctx, DebugLevel, msg, fields)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.output(ctx, InfoLevel, msg, fields)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.output(ctx, WarnLevel, msg, fields)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.output(ctx, ErrorLevel, msg, fields)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	c := *l
	c.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return &c
}

// NoopLogger 丢弃全部日志
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

type loggerHolder struct{ Logger }

var global atomic.Pointer[loggerHolder]

func init() {
	global.Store(&loggerHolder{NewStdLogger("").WithLevel(InfoLevel)})
}

// SetLogger 设置全局 Logger；nil 被忽略
func SetLogger(logger Logger) {
	if logger != nil {
		global.Store(&loggerHolder{logger})
	}
}

// GetLogger 获取全局 Logger
func GetLogger() Logger {
	return global.Load().Logger
}
