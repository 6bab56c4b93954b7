package worldbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/natdata/internal/domain"
	providerx "github.com/John-Robertt/natdata/internal/provider"
)

// DefaultBaseURL 是 World Bank Indicators API v2 的默认入口。
const DefaultBaseURL = "https://api.worldbank.org"

// 单个年份的响应很小；上限只用于防御异常响应。
const maxBodyBytes = 8 << 20

// Provider 实现 World Bank Indicators API 的请求与 JSON 解析。
//
// 约束：
// - 每次只查询一个年份（date=YYYY），年份回退由上层负责
// - Fetch/Parse 不做缓存（由 cache 层统一控制）
// - Parse 必须是纯函数（只依赖输入 body）
type Provider struct {
	// BaseURL 允许指向镜像或测试服务器；为空时使用 DefaultBaseURL。
	BaseURL string
}

func (Provider) Name() string { return "worldbank" }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// QueryURL 返回查询 URL：
// https://api.worldbank.org/v2/country/<ISO3>/indicator/<CODE>?format=json&date=<YYYY>&per_page=50
func (p Provider) QueryURL(q providerx.Query) string {
	v := url.Values{}
	v.Set("format", "json")
	v.Set("date", strconv.Itoa(q.Year))
	v.Set("per_page", "50")
	return p.baseURL() + "/v2/country/" + url.PathEscape(string(q.Region)) +
		"/indicator/" + url.PathEscape(q.Indicator) + "?" + v.Encode()
}

func (p Provider) Fetch(ctx context.Context, q providerx.Query, c *http.Client) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if q.Year <= 0 {
		return nil, "", fmt.Errorf("非法年份：%d", q.Year)
	}
	u := p.QueryURL(q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, u, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, u, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	return b, u, err
}

// 响应形态固定为两元素数组：[分页元信息, 观测序列]；出错时只有一个带 message 的元素。
type pageMeta struct {
	Page    json.RawMessage `json:"page"`
	Total   json.RawMessage `json:"total"`
	Message []struct {
		ID    string `json:"id"`
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"message"`
}

type idValue struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type observation struct {
	Indicator       idValue  `json:"indicator"`
	Country         idValue  `json:"country"`
	CountryISO3Code string   `json:"countryiso3code"`
	Date            string   `json:"date"`
	Value           *float64 `json:"value"`
}

// Parse 把 API 响应解析为观测序列。
//
// - message 元素 => *APIError
// - 观测序列为 null/空，或首个 value 为 null => ErrNoObservation
func (Provider) Parse(q providerx.Query, body []byte) ([]domain.Observation, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("响应为空")
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, fmt.Errorf("响应不是 JSON 数组：%w", err)
	}
	if len(parts) == 0 {
		return nil, errors.New("响应数组为空")
	}

	var meta pageMeta
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return nil, fmt.Errorf("分页元信息无法解析：%w", err)
	}
	if len(meta.Message) > 0 {
		m := meta.Message[0]
		return nil, &providerx.APIError{ID: m.ID, Key: m.Key, Value: m.Value}
	}
	if len(parts) < 2 || isNull(parts[1]) {
		return nil, providerx.ErrNoObservation
	}

	var raw []observation
	if err := json.Unmarshal(parts[1], &raw); err != nil {
		return nil, fmt.Errorf("观测序列无法解析：%w", err)
	}
	if len(raw) == 0 {
		return nil, providerx.ErrNoObservation
	}

	out := make([]domain.Observation, 0, len(raw))
	for _, o := range raw {
		region := strings.TrimSpace(o.CountryISO3Code)
		if region == "" {
			region = string(q.Region)
		}
		ind := strings.TrimSpace(o.Indicator.ID)
		if ind == "" {
			ind = q.Indicator
		}
		out = append(out, domain.Observation{
			Indicator: ind,
			Region:    region,
			Date:      strings.TrimSpace(o.Date),
			Value:     o.Value,
		})
	}
	if out[0].Value == nil {
		return out, providerx.ErrNoObservation
	}
	return out, nil
}

func isNull(b json.RawMessage) bool {
	return len(bytes.TrimSpace(b)) == 0 || string(bytes.TrimSpace(b)) == "null"
}
