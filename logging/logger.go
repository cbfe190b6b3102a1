// Package logging 提供风险引擎统一的结构化日志（slog）封装，支持 OpenTelemetry 追踪上下文注入、日志切割与运行时调级。
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLogger *Logger
	once          sync.Once
	// level 为所有由本包创建的 Handler 共享，SetLevel 修改后立即生效。
	level = new(slog.LevelVar)
)

// Config 定义日志配置。
type Config struct {
	Service    string
	Module     string
	Level      string
	Format     string // json 或 text
	Output     string // stdout、stderr、file 或 both
	File       string // 日志文件路径，Output 含 file 时必填
	MaxSize    int    // 每个日志文件最大尺寸 (MB)
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
}

// Logger 封装 *slog.Logger，附带服务名与模块名。
type Logger struct {
	*slog.Logger
	Service string
	Module  string
}

// TraceHandler 从 context 中提取 trace_id 与 span_id 注入日志记录。
type TraceHandler struct {
	slog.Handler
}

// Handle 实现 slog.Handler。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保持装饰器在派生 Handler 上仍然生效。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 同上。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel 将字符串级别转换为 slog.Level，无法识别时返回 Info。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 在运行时调整全局日志级别，供配置热更新调用。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// CurrentLevel 返回当前生效的日志级别。
func CurrentLevel() slog.Level {
	return level.Level()
}

// NewFromConfig 根据配置创建 Logger。
func NewFromConfig(cfg Config) *Logger {
	level.Set(ParseLevel(cfg.Level))

	var sinks []Sink
	switch cfg.Output {
	case "file":
		sinks = append(sinks, NewSink("file", rotatingWriter(cfg), cfg.Format))
	case "both":
		sinks = append(sinks, NewSink("stdout", os.Stdout, cfg.Format), NewSink("file", rotatingWriter(cfg), cfg.Format))
	case "stderr":
		sinks = append(sinks, NewSink("stderr", os.Stderr, cfg.Format))
	default:
		sinks = append(sinks, NewSink("stdout", os.Stdout, cfg.Format))
	}
	return NewWithSinks(cfg.Service, cfg.Module, sinks...)
}

// NewSink 以 json 或 text 格式写入 w 的输出，级别跟随全局级别。
func NewSink(name string, w io.Writer, format string) Sink {
	return Sink{Name: name, handler: newHandler(w, format)}
}

// NewWithSinks 创建同时写入多个输出的 Logger，写入失败经 OnSinkError 上报。
func NewWithSinks(service, module string, sinks ...Sink) *Logger {
	logger := slog.New(&TraceHandler{Handler: newFanoutHandler(sinks...)}).With(
		slog.String("service", service),
		slog.String("module", module),
	)
	return &Logger{Logger: logger, Service: service, Module: module}
}

// NewWithWriter 创建输出到指定 writer 的 Logger，主要用于测试。
func NewWithWriter(w io.Writer, service, module string) *Logger {
	return NewWithSinks(service, module, NewSink("writer", w, "json"))
}

func rotatingWriter(cfg Config) io.Writer {
	file := cfg.File
	if file == "" {
		file = "logs/" + cfg.Service + ".log"
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

func newHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// NewLogger 使用简单参数创建 Logger。
func NewLogger(service, module string, lvl ...string) *Logger {
	l := "info"
	if len(lvl) > 0 {
		l = lvl[0]
	}
	return NewFromConfig(Config{Service: service, Module: module, Level: l})
}

// InitLogger 初始化全局默认日志记录器，只生效一次。
func InitLogger(cfg Config) {
	once.Do(func() {
		defaultLogger = NewFromConfig(cfg)
		slog.SetDefault(defaultLogger.Logger)
	})
}

// Default 返回默认日志记录器，未初始化时使用 riskengine/default。
func Default() *Logger {
	InitLogger(Config{Service: "riskengine", Module: "default", Level: "info"})
	return defaultLogger
}

// Component 返回带 component 属性的子 Logger；l 为 nil 时基于默认 Logger。
func Component(l *Logger, name string) *Logger {
	if l == nil {
		l = Default()
	}
	return &Logger{
		Logger:  l.With(slog.String("component", name)),
		Service: l.Service,
		Module:  l.Module,
	}
}

// Info 记录 Info 级别日志。
func Info(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

// Warn 记录 Warn 级别日志。
func Warn(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, args...)
}

// Error 记录 Error 级别日志。
func Error(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}

// Debug 记录 Debug 级别日志。
func Debug(ctx context.Context, msg string, args ...any) {
	Default().DebugContext(ctx, msg, args...)
}

// LogDuration 返回一个在调用时记录耗时的函数，典型用法为 defer LogDuration(ctx, "build cube")()。
func LogDuration(ctx context.Context, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args, "duration", time.Since(start))
		Info(ctx, fmt.Sprintf("%s finished", operation), logArgs...)
	}
}
