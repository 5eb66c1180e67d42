package types

import (
	"errors"
	"fmt"
)

// ErrorKind 摄取流水线统一错误分类
type ErrorKind string

// 单个条目级别的错误，流水线记录后继续处理下一个条目
const (
	ErrScan          ErrorKind = "SCAN_ERROR"
	ErrConversion    ErrorKind = "CONVERSION_ERROR"
	ErrPolicySkip    ErrorKind = "POLICY_SKIP"
	ErrAnalysis      ErrorKind = "ANALYSIS_DEGRADED"
	ErrStoreWrite    ErrorKind = "STORE_WRITE_ERROR"
	ErrInternalError ErrorKind = "INTERNAL_ERROR"
)

// ErrSetup 存储连接或 schema 初始化失败，会中止整个批次
const ErrSetup ErrorKind = "SETUP_ERROR"

// 检索 API 使用的错误
const (
	ErrNotFound       ErrorKind = "NOT_FOUND"
	ErrInvalidRequest ErrorKind = "INVALID_REQUEST"
	ErrUnavailable    ErrorKind = "SERVICE_UNAVAILABLE"
	ErrRateLimited    ErrorKind = "RATE_LIMITED"
)

// Error represents a structured pipeline error with kind, message and cause.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	ItemID  string    `json:"item_id,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithItem tags the error with the item it belongs to.
func (e *Error) WithItem(itemID string) *Error {
	e.ItemID = itemID
	return e
}

// Fatal reports whether the error kind must abort the whole batch.
func (e *Error) Fatal() bool {
	return e.Kind == ErrSetup
}

// GetErrorKind extracts the error kind from an error chain.
func GetErrorKind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err carries a kind that aborts the batch.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal()
	}
	return false
}
