package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clinic-roomsync/common/config"
	"clinic-roomsync/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader 每个请求携带的追踪 ID
const RequestIDHeader = "X-Request-ID"

// Client 后端 REST API 客户端（房间、住院、病人/员工目录）
// 读请求在传输失败时重试；写请求从不自动重试
type Client struct {
	read   *resty.Client
	write  *resty.Client
	logger *zap.Logger
}

// NewClient 创建 API 客户端
func NewClient(cfg config.APIConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		read:   newRestyClient(cfg, cfg.RetryCount),
		write:  newRestyClient(cfg, 0),
		logger: logger.With(zap.String("component", "api")),
	}
}

func newRestyClient(cfg config.APIConfig, retryCount int) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.AuthToken != "" {
		client.SetAuthToken(cfg.AuthToken)
	}

	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if r.Header.Get(RequestIDHeader) == "" {
			r.SetHeader(RequestIDHeader, uuid.NewString())
		}
		return nil
	})
	return client
}

// call 描述一次 API 调用
type call struct {
	op       string // 日志用操作名
	resource string // 409 时的冲突资源
	fallback string // 无 detail 时的通用错误信息
	method   string
	path     string
	query    map[string]string
	body     interface{}
}

func (c *Client) get(ctx context.Context, cl call, out interface{}) error {
	cl.method = http.MethodGet
	return c.do(ctx, c.read, cl, out)
}

func (c *Client) send(ctx context.Context, cl call, out interface{}) error {
	return c.do(ctx, c.write, cl, out)
}

func (c *Client) do(ctx context.Context, client *resty.Client, cl call, out interface{}) error {
	req := client.R().SetContext(ctx)
	if len(cl.query) > 0 {
		req.SetQueryParams(cl.query)
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}

	resp, err := req.Execute(cl.method, cl.path)
	if err != nil {
		c.logger.Error("API call failed",
			zap.String("op", cl.op),
			zap.String("method", cl.method),
			zap.String("path", cl.path),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", cl.fallback, err)
	}

	if !resp.IsSuccess() {
		detail := extractDetail(resp.Body(), cl.fallback)
		c.logger.Warn("API returned error",
			zap.String("op", cl.op),
			zap.String("path", cl.path),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("detail", detail),
			zap.String("request_id", resp.Request.Header.Get(RequestIDHeader)),
		)
		if resp.StatusCode() == http.StatusConflict {
			return &domain.StateConflictError{Resource: cl.resource, Detail: detail}
		}
		return &domain.APIError{StatusCode: resp.StatusCode(), Detail: detail}
	}

	c.logger.Debug("API call succeeded",
		zap.String("op", cl.op),
		zap.Int("status_code", resp.StatusCode()),
	)

	if out == nil || len(bytes.TrimSpace(resp.Body())) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", cl.fallback, err)
	}
	return nil
}

// decodeList 兼容两种列表响应：裸数组，或 {key: [...], total, page, size}
func decodeList(raw json.RawMessage, key string, out interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return err
	}
	items, ok := wrapper[key]
	if !ok {
		return fmt.Errorf("list response missing %q", key)
	}
	return json.Unmarshal(items, out)
}

// extractDetail 提取错误响应中的 detail
// detail 可能是字符串、对象（message / validation_errors）或 FastAPI 校验错误数组
func extractDetail(body []byte, fallback string) string {
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fallback
	}
	detail := bytes.TrimSpace(envelope.Detail)
	if len(detail) == 0 || bytes.Equal(detail, []byte("null")) {
		if envelope.Message != "" {
			return envelope.Message
		}
		return fallback
	}

	var s string
	if json.Unmarshal(detail, &s) == nil {
		if s == "" {
			return fallback
		}
		return s
	}

	var obj struct {
		Message          string `json:"message"`
		ValidationErrors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"validation_errors"`
	}
	if json.Unmarshal(detail, &obj) == nil {
		if len(obj.ValidationErrors) > 0 {
			parts := make([]string, 0, len(obj.ValidationErrors))
			for _, v := range obj.ValidationErrors {
				parts = append(parts, v.Field+": "+v.Message)
			}
			return "Validation failed: " + strings.Join(parts, ", ")
		}
		if obj.Message != "" {
			return obj.Message
		}
	}

	var list []struct {
		Loc []interface{} `json:"loc"`
		Msg string        `json:"msg"`
	}
	if json.Unmarshal(detail, &list) == nil && len(list) > 0 {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if len(item.Loc) > 0 {
				parts = append(parts, fmt.Sprintf("%v: %s", item.Loc[len(item.Loc)-1], item.Msg))
			} else {
				parts = append(parts, item.Msg)
			}
		}
		return strings.Join(parts, ", ")
	}

	return fallback
}
