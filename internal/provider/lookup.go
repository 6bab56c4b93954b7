package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/natdata/internal/domain"
)

// Error 是 provider 阶段的可追溯错误。
// 上层可以据此把失败归类为 transport / parse 等结果，并写入 report。
type Error struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" 或 "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Lookup 对单个 provider 执行 fetch + parse，返回观测值与原始响应（用于 cache）。
// 失败时 err 为 *Error；ErrNoObservation/APIError 可通过 errors.Is/As 穿透识别。
func Lookup(ctx context.Context, p Provider, q Query, c *http.Client) ([]domain.Observation, []byte, error) {
	if p == nil {
		return nil, nil, errors.New("provider 不能为空")
	}
	if q.Indicator == "" || q.Region == "" {
		return nil, nil, fmt.Errorf("查询不完整：indicator=%q region=%q", q.Indicator, q.Region)
	}

	body, _, err := p.Fetch(ctx, q, c)
	if err != nil {
		return nil, nil, &Error{Provider: p.Name(), Stage: "fetch", Err: err}
	}
	obs, err := p.Parse(q, body)
	if err != nil {
		return nil, body, &Error{Provider: p.Name(), Stage: "parse", Err: err}
	}
	return obs, body, nil
}

// Classify 把一次尝试的错误映射为 report 中的 outcome。
//
// 分类只用于解释原因：无论哪一类，上层都按“该年份无数据”回退到更早年份。
func Classify(err error) string {
	if err == nil {
		return domain.OutcomeOK
	}
	if errors.Is(err, ErrNoObservation) {
		return domain.OutcomeNoData
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return domain.OutcomeAPI
	}
	if errors.Is(err, context.Canceled) {
		return domain.OutcomeCancelled
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Stage == "parse" {
		return domain.OutcomeParse
	}
	// HTTP 非 2xx、拨号/TLS/超时等都归为传输层问题。
	return domain.OutcomeTransport
}
