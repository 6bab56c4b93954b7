package provider

import (
	"context"
	"net/http"

	"github.com/John-Robertt/natdata/internal/domain"
)

// Query 是一次数据源查询：某指标、某地区、某年份。
type Query struct {
	Indicator string
	Region    domain.RegionCode
	Year      int
}

// Provider 把“数据源 API 的变化”限制在 provider 包内部；核心流程只依赖统一接口与 domain.Observation。
//
// 约束：
// - Fetch 不做缓存、不做年份回退（这些由 fetch/cache 层统一实现）；传输层重试/限速由 httpx 负责
// - Parse 必须是纯函数：相同输入 => 相同输出
// - 无观测值（空序列或首个值为 null）时 Parse 返回 ErrNoObservation
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q Query, c *http.Client) (body []byte, pageURL string, err error)
	Parse(q Query, body []byte) ([]domain.Observation, error)
}
