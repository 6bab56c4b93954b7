package fetch

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/natdata/internal/domain"
	"github.com/John-Robertt/natdata/internal/infra/cache"
	"github.com/John-Robertt/natdata/internal/provider"
)

// Result 是一次查询的结果；Cached 表示来自本地响应缓存而非网络。
type Result struct {
	Observations []domain.Observation
	Cached       bool
}

// Source 是 Resolve 查询数据的唯一入口（便于测试替换）。
type Source interface {
	Lookup(ctx context.Context, q provider.Query) (Result, error)
}

// ProviderSource 把 provider + HTTP client（可选再加响应缓存）组合成 Source。
type ProviderSource struct {
	Provider provider.Provider
	Client   *http.Client

	// Cache 为 nil 时不读不写缓存（--no-cache）。
	Cache *cache.Store
	Log   zerolog.Logger
}

func (s ProviderSource) Lookup(ctx context.Context, q provider.Query) (Result, error) {
	name := s.Provider.Name()

	// 先尝试 cache，命中且仍可解析出值则不再打网络。
	if s.Cache != nil {
		if b, ok, err := s.Cache.ReadResponse(name, q); err == nil && ok {
			if obs, perr := s.Provider.Parse(q, b); perr == nil && usable(obs) {
				return Result{Observations: obs, Cached: true}, nil
			}
			// 坏缓存：忽略，走网络（正常运行会写回新缓存）。
		}
	}

	obs, body, err := provider.Lookup(ctx, s.Provider, q, s.Client)
	if err != nil {
		return Result{Observations: obs}, err
	}

	// 只缓存有值的响应：空响应可能在数据源更新后补齐。
	if s.Cache != nil && !s.Cache.ReadOnly && usable(obs) {
		if werr := s.Cache.WriteResponse(name, q, body); werr != nil {
			s.Log.Warn().Err(werr).Str("region", string(q.Region)).Str("indicator", q.Indicator).Int("year", q.Year).Msg("写入响应缓存失败")
		}
	}
	return Result{Observations: obs}, nil
}

// usable 报告观测序列是否给出了可用值：只看首个观测的 value。
func usable(obs []domain.Observation) bool {
	return len(obs) > 0 && obs[0].Value != nil
}
