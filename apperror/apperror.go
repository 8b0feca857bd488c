// Package apperror 定义抠图流水线的错误分类
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Type 错误类别
type Type string

const (
	TypeInvalidImage  Type = "invalid_image"
	TypeLowConfidence Type = "low_confidence"
	TypeConvergence   Type = "convergence"
	TypeCancelled     Type = "cancelled"
	TypeIO            Type = "io"
	TypeBusy          Type = "busy"
	TypeConfig        Type = "config"
)

// Error 结构化错误
type Error struct {
	Type       Type   `json:"type"`
	Message    string `json:"message"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code"`
	Cause      error  `json:"-"`
}

func (e *Error) Error() string {
	msg := string(e.Type) + ": " + e.Message
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewInvalidImage 图像缺失、损坏或尺寸过小
func NewInvalidImage(message string, cause error) *Error {
	return &Error{Type: TypeInvalidImage, Message: message, StatusCode: http.StatusBadRequest, Cause: cause}
}

// NewLowConfidence 无法自动识别背景，可提供手动种子重试
func NewLowConfidence(message string) *Error {
	return &Error{Type: TypeLowConfidence, Message: message, StatusCode: http.StatusUnprocessableEntity}
}

// NewConvergenceWarning 达到最大迭代次数仍未收敛，非致命
func NewConvergenceWarning(iterations int) *Error {
	return &Error{
		Type:       TypeConvergence,
		Message:    fmt.Sprintf("refiner stopped after %d iterations without converging", iterations),
		StatusCode: http.StatusOK,
	}
}

// NewCancelled 调用方取消
func NewCancelled(cause error) *Error {
	return &Error{Type: TypeCancelled, Message: "processing cancelled", StatusCode: http.StatusServiceUnavailable, Cause: cause}
}

// NewIO 编解码读写失败，带上文件路径
func NewIO(message, path string, cause error) *Error {
	return &Error{Type: TypeIO, Message: message, Path: path, StatusCode: http.StatusInternalServerError, Cause: cause}
}

// NewBusy 处理队列已满
func NewBusy(cause error) *Error {
	return &Error{Type: TypeBusy, Message: "processing queue is full, retry later", StatusCode: http.StatusTooManyRequests, Cause: cause}
}

// NewConfig 参数非法
func NewConfig(message string) *Error {
	return &Error{Type: TypeConfig, Message: message, StatusCode: http.StatusBadRequest}
}

// IsType 判断错误链中是否包含指定类别
func IsType(err error, t Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// TypeOf 错误类别，非结构化错误返回空
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// StatusCode 提取HTTP状态码
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}
