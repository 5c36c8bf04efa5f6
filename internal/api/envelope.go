package api

import (
	"time"

	"github.com/google/uuid"

	xerrors "VeemFlow-MCP/internal/errors"
)

// Meta 是每次工具调用响应都携带的元信息。request_id 由调用方提供，
// 缺省时为本次调用新生成。
type Meta struct {
	Tool         string `json:"tool"`
	RequestID    string `json:"request_id"`
	TimestampUTC string `json:"timestamp_utc"`
}

// ErrorBody 是失败响应中的错误描述。
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Envelope 是所有工具统一的响应信封。成功时携带 Data，
// 失败时携带 Error，二者互斥。
type Envelope struct {
	OK    bool       `json:"ok"`
	Meta  Meta       `json:"meta"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

func newMeta(tool, requestID string) Meta {
	return Meta{
		Tool:         tool,
		RequestID:    requestID,
		TimestampUTC: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// ensureRequestID 在调用方未提供 request_id 时补一个新的。
func ensureRequestID(requestID string) string {
	if requestID != "" {
		return requestID
	}
	return uuid.NewString()
}

// ok 组装成功信封。
func ok(tool, requestID string, data any) Envelope {
	return Envelope{OK: true, Meta: newMeta(tool, requestID), Data: data}
}

// fail 把任意错误映射到失败信封。统一错误类型按码原样透出；
// 其余错误归入 UNHANDLED，原始信息保留在 details 里供排查。
func fail(tool, requestID string, err error) Envelope {
	body := &ErrorBody{
		Code:    string(xerrors.CodeUnhandled),
		Message: "Unhandled error in " + tool + ".",
		Details: map[string]any{},
	}
	if typed, isTyped := xerrors.From(err); isTyped {
		body.Code = string(typed.Code())
		body.Message = typed.Message()
		if details := typed.Details(); details != nil {
			body.Details = details
		}
	} else if err != nil {
		body.Details["error"] = err.Error()
	}
	return Envelope{OK: false, Meta: newMeta(tool, requestID), Error: body}
}
