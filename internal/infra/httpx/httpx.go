package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout       = 20 * time.Second
	DefaultRetryMax      = 2
	DefaultRatePerSecond = 5.0

	userAgent = "natdata/1.0 (+https://github.com/John-Robertt/natdata)"
)

// Options 是 API client 的网络策略（全部来自 EffectiveConfig，不做隐式默认继承）。
type Options struct {
	ProxyURL string
	// Timeout 是单个请求（含重试）的总超时；<=0 时使用 DefaultTimeout。
	Timeout time.Duration
	// RetryMax 表示传输层最大重试次数（不含首次尝试）。
	RetryMax int
	// RatePerSecond 限制请求速率（礼貌访问数据源）；0 表示不限速。
	RatePerSecond float64
	Logger        zerolog.Logger
}

// Transport 把“UA + 代理 + 限速 + 有界重试”固化为统一策略。
//
// 设计目标：provider 只负责“拼 URL + 解析响应”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	UserAgent string

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int

	// Limiter 为 nil 时不限速；每次尝试（包括重试）都要先拿到令牌。
	Limiter *rate.Limiter

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	DisableKeepAlives bool

	Log zerolog.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.UserAgent != "" {
			r.Header.Set("User-Agent", t.UserAgent)
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
		if attempt < max {
			t.Log.Warn().Err(err).Str("url", req.URL.String()).Int("attempt", attempt+1).Msg("请求失败，重试")
		}
	}
	return nil, lastErr
}

// NewAPIClient 构造访问统计数据源 API 的 HTTP client。
//
// 规则：
// - proxyURL 非空：走代理，且禁用 keep-alive（每请求新连接）
// - 有界重试 + 限速 + 总超时
func NewAPIClient(o Options) (*http.Client, error) {
	if o.RatePerSecond < 0 {
		return nil, fmt.Errorf("rate_per_second 不能为负数：%v", o.RatePerSecond)
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	disableKeepAlives := false
	if proxyURL := strings.TrimSpace(o.ProxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	var lim *rate.Limiter
	if o.RatePerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(o.RatePerSecond), 1)
	}

	tr := &Transport{
		Base:              base,
		UserAgent:         userAgent,
		RetryMax:          o.RetryMax,
		Limiter:           lim,
		DisableKeepAlives: disableKeepAlives,
		Log:               o.Logger,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}
