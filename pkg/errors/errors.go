package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// 错误码
const (
	CodeInvalidArgument = 4001
	CodeNotFound        = 4041
	CodeRejected        = 4091
	CodeMalformedRow    = 4221
	CodeSchemaMismatch  = 4601
	CodeTransientFetch  = 5031
)

// Error 带错误码、堆栈和上下文的错误
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Err     error      `json:"-"` // 原始错误，不序列化
	Stack   string     `json:"-"`
	Context []KeyValue `json:"context,omitempty"`
}

// KeyValue 错误上下文
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode 创建带错误码的错误
func WithCode(code int, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack()}
}

// WithCodef 创建带错误码的格式化错误
func WithCodef(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack()}
}

// Wrap 包装错误；err 为 nil 时返回 nil
func Wrap(err error, code int, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err, Stack: captureStack()}
}

// Wrapf 包装错误并格式化消息
func Wrapf(err error, code int, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err, Stack: captureStack()}
}

// New 创建无错误码的错误
func New(message string) *Error {
	return &Error{Message: message, Stack: captureStack()}
}

// WithContext 追加上下文，返回新实例
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}
	out := *e
	out.Context = append(append([]KeyValue(nil), e.Context...), KeyValue{Key: key, Value: value})
	return &out
}

// ContextValue 查找上下文值
func (e *Error) ContextValue(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, kv := range e.Context {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	lines := strings.Split(string(buf[:n]), "\n")
	// 去掉 goroutine 头和 captureStack/构造函数两帧
	if len(lines) > 5 {
		lines = lines[5:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// As 在错误链中查找 *Error
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode 返回错误链中第一个非零错误码
func GetCode(err error) int {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return 0
		}
		if e.Code != 0 {
			return e.Code
		}
		err = e.Err
	}
	return 0
}

// HasCode 错误链中是否存在指定错误码
func HasCode(err error, code int) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// Is 透传标准库 errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Cause 返回最底层错误
func Cause(err error) error {
	for err != nil {
		next := stderrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return err
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "[%d] %s", e.Code, e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
