package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewAPIClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewAPIClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("代理模式应禁用 keep-alive")
	}
}

func TestNewAPIClient_Defaults(t *testing.T) {
	c, err := NewAPIClient(Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if c.Timeout != DefaultTimeout {
		t.Fatalf("期望默认超时 %v，实际 %v", DefaultTimeout, c.Timeout)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Limiter != nil {
		t.Fatalf("rate=0 时不应限速")
	}
}

func TestNewAPIClient_ExplicitTimeoutAndRate(t *testing.T) {
	c, err := NewAPIClient(Options{Timeout: 3 * time.Second, RatePerSecond: 2, RetryMax: 4})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if c.Timeout != 3*time.Second {
		t.Fatalf("期望超时 3s，实际 %v", c.Timeout)
	}
	tr := c.Transport.(*Transport)
	if tr.Limiter == nil || tr.Limiter.Limit() != rate.Limit(2) {
		t.Fatalf("期望限速 2/s，实际 %v", tr.Limiter)
	}
	if tr.RetryMax != 4 {
		t.Fatalf("期望 RetryMax=4，实际 %d", tr.RetryMax)
	}
}

func TestNewAPIClient_InvalidOptions(t *testing.T) {
	if _, err := NewAPIClient(Options{ProxyURL: "http://[::1"}); err == nil {
		t.Fatalf("非法代理：期望错误，但得到 nil")
	}
	if _, err := NewAPIClient(Options{RatePerSecond: -1}); err == nil {
		t.Fatalf("负速率：期望错误，但得到 nil")
	}
}

func TestTransport_SetsUserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	c, err := NewAPIClient(Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()

	if ua, _ := got.Load().(string); ua != userAgent {
		t.Fatalf("期望 UA=%q，实际 %q", userAgent, ua)
	}
}

func TestTransport_BoundedRetryOnTransportError(t *testing.T) {
	// 监听后立即关闭，保证连接被拒绝（传输层错误）。
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen 失败：%v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	var dials int32
	base := &http.Transport{
		DialContext: func(ctx context.Context, network, a string) (net.Conn, error) {
			atomic.AddInt32(&dials, 1)
			var d net.Dialer
			return d.DialContext(ctx, network, a)
		},
	}
	tr := &Transport{Base: base, RetryMax: 2}
	c := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	_, err = c.Get("http://" + addr + "/")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if n := atomic.LoadInt32(&dials); n != 3 {
		t.Fatalf("期望 3 次尝试，实际 %d", n)
	}
}

func TestTransport_LimiterRespectsContext(t *testing.T) {
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	lim.Allow() // 耗尽令牌

	tr := &Transport{Base: &http.Transport{}, Limiter: lim}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1/", nil)
	_, err := tr.RoundTrip(req)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际 %v", err)
	}
}
