package logging

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Sink 一个命名的日志输出目标。
type Sink struct {
	Name    string
	handler slog.Handler
}

var sinkErrorHook atomic.Pointer[func(sink string, err error)]

// OnSinkError 注册输出写入失败的回调，传 nil 取消。回调在写日志的 goroutine 中同步执行。
func OnSinkError(fn func(sink string, err error)) {
	if fn == nil {
		sinkErrorHook.Store(nil)
		return
	}
	sinkErrorHook.Store(&fn)
}

func reportSinkError(name string, err error) {
	if fn := sinkErrorHook.Load(); fn != nil {
		(*fn)(name, err)
	}
}

// fanoutHandler 把每条记录分发到全部输出。
// 单个输出失败只上报，不影响其余输出；所有启用的输出都失败时 Handle 才返回错误。
type fanoutHandler struct {
	sinks []Sink
}

func newFanoutHandler(sinks ...Sink) *fanoutHandler {
	return &fanoutHandler{sinks: sinks}
}

func (h *fanoutHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, s := range h.sinks {
		if s.handler.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	tried := 0
	for _, s := range h.sinks {
		if !s.handler.Enabled(ctx, r.Level) {
			continue
		}
		tried++
		if err := s.handler.Handle(ctx, r.Clone()); err != nil {
			reportSinkError(s.Name, err)
			errs = append(errs, err)
		}
	}
	if tried > 0 && len(errs) == tried {
		return errors.Join(errs...)
	}
	return nil
}

func (h *fanoutHandler) derive(fn func(slog.Handler) slog.Handler) *fanoutHandler {
	sinks := make([]Sink, len(h.sinks))
	for i, s := range h.sinks {
		sinks[i] = Sink{Name: s.Name, handler: fn(s.handler)}
	}
	return &fanoutHandler{sinks: sinks}
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}
