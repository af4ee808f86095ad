package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound 目标资源在本地或后端不存在
var ErrNotFound = errors.New("not found")

// TransportError 实时连接丢失或不可达
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("realtime %s: transport unavailable", e.Op)
	}
	return fmt.Sprintf("realtime %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError 发起外部请求前被拒绝的输入，Field 标识出错字段
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// StateConflictError 后端报告资源已不在预期状态（例如房间已被并发占用）
// 调用方应刷新后重试，不做自动重试
type StateConflictError struct {
	Resource string
	Detail   string
}

func (e *StateConflictError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("state conflict on %s: refresh and retry", e.Resource)
	}
	return fmt.Sprintf("state conflict on %s: %s", e.Resource, e.Detail)
}

// InvalidStateError 对非预期状态的实体执行操作（例如对已出院记录办理出院）
type InvalidStateError struct {
	Entity string
	ID     ID
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %q", e.Op, e.Entity, e.ID, e.State)
}

// InvalidDurationError 出院时间不晚于入院时间
type InvalidDurationError struct {
	AdmissionDate time.Time
	DischargeDate time.Time
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("discharge date %s must be after admission date %s",
		e.DischargeDate.Format(time.RFC3339), e.AdmissionDate.Format(time.RFC3339))
}

// APIError 后端返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Detail)
}

// Is 404 视为 ErrNotFound
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Message 面向用户的错误信息
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return err.Error()
}
