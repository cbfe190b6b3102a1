// Package xerrors 定义风险引擎统一的错误模型：错误大类、业务码、堆栈与上下文。
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType 错误的大类。
type ErrorType uint

const (
	ErrUnknown ErrorType = iota
	ErrInternal
	ErrInvalidArg
	ErrNotFound
	// ErrConfiguration 构造参数不合法或互相矛盾，调用方需修正输入。
	ErrConfiguration
	// ErrMissingData 读取不存在的风险因子、交易或日期。
	ErrMissingData
	// ErrNumerical 数值计算失败，如奇异矩阵、不收敛。
	ErrNumerical
	ErrUnavailable
)

func (t ErrorType) String() string {
	names := [...]string{
		"Unknown", "Internal", "InvalidArg", "NotFound",
		"Configuration", "MissingData", "Numerical", "Unavailable",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

// Error 增强型错误结构。
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Detail  string         `json:"detail"` // 指明出错的 key、id 或币种
	Cause   error          `json:"-"`
	Stack   []string       `json:"stack"`
	Context map[string]any `json:"context"`
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %d: %s", e.Type, e.Code, e.Message)
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" (Cause: %v)", e.Cause)
	}
	return s
}

// Unwrap 实现 Go 1.13 解包接口。
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 以 Type 与 Code 判等，使 Derive 派生出的错误仍能匹配原哨兵。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// New 创建新错误并捕获堆栈。
func New(errType ErrorType, code int, message string, detail string, cause error) *Error {
	e := &Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
		Context: make(map[string]any),
	}
	e.captureStack()
	return e
}

func (e *Error) captureStack() {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		e.Stack = append(e.Stack, fmt.Sprintf("%s:%d (%s)", frame.File, frame.Line, frame.Function))
		if !more || len(e.Stack) >= depth {
			break
		}
	}
}

// WithContext 附加上下文数据。
func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// Derive 以哨兵错误为模板创建新实例并填充 Detail，哨兵本身不被修改。
func Derive(sentinel *Error, format string, args ...any) *Error {
	e := New(sentinel.Type, sentinel.Code, sentinel.Message, fmt.Sprintf(format, args...), nil)
	return e
}

// DeriveCause 同 Derive，并记录原始错误。
func DeriveCause(sentinel *Error, cause error, format string, args ...any) *Error {
	e := New(sentinel.Type, sentinel.Code, sentinel.Message, fmt.Sprintf(format, args...), cause)
	return e
}

// Internal 快速构造内部错误。
func Internal(msg string, cause error) *Error {
	return New(ErrInternal, 500, msg, "", cause)
}

// InvalidArg 快速构造参数错误。
func InvalidArg(msg string) *Error {
	return New(ErrInvalidArg, 400, msg, "", nil)
}

// Configuration 快速构造配置错误。
func Configuration(format string, args ...any) *Error {
	return New(ErrConfiguration, 410, "configuration error", fmt.Sprintf(format, args...), nil)
}

// Wrap 包装现有错误；若已是 *Error 则保留其类型与码。
func Wrap(err error, errType ErrorType, msg string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := FromError(err); ok {
		return New(e.Type, e.Code, msg, e.Detail, err)
	}
	return New(errType, int(errType), msg, "", err)
}

// FromError 沿错误链查找 *Error。
func FromError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TypeOf 返回错误链上第一个 *Error 的大类，非 *Error 返回 ErrUnknown。
func TypeOf(err error) ErrorType {
	if e, ok := FromError(err); ok {
		return e.Type
	}
	return ErrUnknown
}

// IsType 判断错误链上是否存在指定大类的 *Error。
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}
