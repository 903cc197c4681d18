package errors

import (
	"errors"
	"fmt"
	"time"
)

// AppError 服务内部统一的错误类型
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Reason 策略拒绝时的机器可读原因码
	Reason string `json:"reason,omitempty"`
	// RetryAfter 频率限制时建议的重试间隔
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
	Cause      error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// NotFound 未知或已停用的资源，对调用方表现为不存在
func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

// Validation 写入请求缺失或非法字段
func Validation(msg string) error {
	return New(CodeValidationFailed, msg)
}

// ContentRejected 内容触发违禁词策略，不回显命中的词
func ContentRejected() error {
	return &AppError{
		Code:    CodePolicyRejected,
		Message: "content violates the content policy",
		Reason:  ReasonContentPolicy,
	}
}

// RateRejected 回帖频率超限
func RateRejected(retryAfter time.Duration) error {
	return &AppError{
		Code:       CodePolicyRejected,
		Message:    "too many replies, slow down",
		Reason:     ReasonRateLimited,
		RetryAfter: retryAfter,
	}
}

// StoreUnavailable 底层持久化暂时不可用，由调用方在边界重试
func StoreUnavailable(cause error) error {
	return Wrap(CodeStoreUnavailable, "persistent store unavailable", cause)
}

// BusUnavailable 事件投递降级，绝不作为写入失败传播
func BusUnavailable(cause error) error {
	return Wrap(CodeBusUnavailable, "event bus unavailable", cause)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func Forbidden(msg string) error {
	return New(CodePermissionDenied, msg)
}

// CodeOf 取出错误码，非AppError返回CodeUnknown
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// AsAppError 尝试转换为AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
