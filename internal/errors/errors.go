package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码，与工具响应中的 error.code 一一对应。
type Code string

// Severity 描述错误的严重程度，用于日志与审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnhandled              Code = "UNHANDLED"
	CodeBadRequest             Code = "BAD_REQUEST"
	CodeUnprocessableDocument  Code = "UNPROCESSABLE_DOCUMENT"
	CodeMissingFields          Code = "MISSING_FIELDS"
	CodeMalformedTimestamp     Code = "MALFORMED_TIMESTAMP"
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeVeemAPI                Code = "VEEM_API_ERROR"
	CodeMissingVeemCredentials Code = "MISSING_VEEM_CREDENTIALS"
	CodeMissingOpenAIKey       Code = "MISSING_OPENAI_API_KEY"
	CodeLLMBadOutput           Code = "LLM_BAD_OUTPUT"
	CodeStorageFailure         Code = "STORAGE_FAILURE"
	CodeQueueFailure           Code = "QUEUE_FAILURE"
	CodeInitializationFailure  Code = "INITIALIZATION_FAILURE"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message  string
	Severity Severity
	Alert    bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnhandled:              {Message: "unhandled error", Severity: SeverityCritical, Alert: true},
		CodeBadRequest:             {Message: "bad request", Severity: SeverityInfo},
		CodeUnprocessableDocument:  {Message: "document is not processable", Severity: SeverityInfo},
		CodeMissingFields:          {Message: "draft missing required fields", Severity: SeverityInfo},
		CodeMalformedTimestamp:     {Message: "timestamp does not parse", Severity: SeverityInfo},
		CodeInvalidArgument:        {Message: "invalid argument", Severity: SeverityInfo},
		CodeVeemAPI:                {Message: "veem api error", Severity: SeverityWarning, Alert: true},
		CodeMissingVeemCredentials: {Message: "veem credentials not configured", Severity: SeverityWarning},
		CodeMissingOpenAIKey:       {Message: "openai api key not configured", Severity: SeverityWarning},
		CodeLLMBadOutput:           {Message: "invoice extractor returned invalid output", Severity: SeverityWarning},
		CodeStorageFailure:         {Message: "storage failure", Severity: SeverityCritical, Alert: true},
		CodeQueueFailure:           {Message: "queue failure", Severity: SeverityCritical, Alert: true},
		CodeInitializationFailure:  {Message: "service not initialized", Severity: SeverityWarning, Alert: true},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。未注册时退回 UNHANDLED 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnhandled]
}

// Error 是系统内统一的错误类型。details 会原样进入工具响应的
// error.details 字段，只放可序列化、对调用方有意义的内容。
type Error struct {
	code     Code
	message  string
	cause    error
	details  map[string]any
	severity *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithDetail 附加一条结构化信息。
func WithDetail(key string, value any) Option {
	return func(e *Error) {
		if e.details == nil {
			e.details = make(map[string]any)
		}
		e.details[key] = value
	}
}

// WithDetails 批量附加结构化信息。
func WithDetails(details map[string]any) Option {
	return func(e *Error) {
		if len(details) == 0 {
			return
		}
		if e.details == nil {
			e.details = make(map[string]any, len(details))
		}
		for k, v := range details {
			e.details[k] = v
		}
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 按错误码比较。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnhandled
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Details 返回结构化信息的副本。
func (e *Error) Details() map[string]any {
	if e == nil || len(e.details) == 0 {
		return nil
	}
	clone := make(map[string]any, len(e.details))
	for k, v := range e.details {
		clone[k] = v
	}
	return clone
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// ShouldAlert 判断是否需要触发告警。
func (e *Error) ShouldAlert() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Alert
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回任意 error 对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnhandled
}

// SeverityOf 返回任意 error 的严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnhandled).Severity
}
