package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoObservation 表示数据源正常应答，但该期没有可用观测值（空序列或首个 value 为 null）。
// 两种情况不做区分：都意味着“该年份无数据”。
var ErrNoObservation = errors.New("no observation")

// HTTPStatusError 表示数据源返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Transient 报告该状态码是否可能在稍后恢复（限流/服务端错误）。
func (e *HTTPStatusError) Transient() bool {
	return e != nil && (e.StatusCode == 429 || e.StatusCode >= 500)
}

// APIError 表示数据源以 200 返回了结构化的错误消息（例如非法地区代码）。
type APIError struct {
	ID    string
	Key   string
	Value string
}

func (e *APIError) Error() string {
	if e == nil {
		return "api error"
	}
	msg := strings.TrimSpace(e.Value)
	if msg == "" {
		msg = strings.TrimSpace(e.Key)
	}
	return fmt.Sprintf("api error %s: %s", e.ID, msg)
}
