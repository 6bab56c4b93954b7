package fetch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/natdata/internal/domain"
	"github.com/John-Robertt/natdata/internal/provider"
)

// DefaultHorizon 是最多回看的年份数（含参考年份本身）。
const DefaultHorizon = 5

// Params 是一次抓取的全部输入；目录与日期作为显式参数传入，不依赖全局状态。
type Params struct {
	Provider      string
	Indicators    domain.Catalog
	Regions       []domain.Region
	ReferenceDate time.Time
	Horizon       int

	// 以下字段只进入 report，不影响抓取行为。
	Output string
	DryRun bool

	Log zerolog.Logger
}

// Attempt 记录单次（地区, 指标, 年份）查询。
type Attempt struct {
	Year    int
	Outcome string
	Err     error
}

// FieldResult 是单个字段的解析结果；Value 为 nil 表示回看窗口内都没有数据。
type FieldResult struct {
	Indicator domain.Indicator
	Value     *float64
	Year      int
	Offset    int
	Attempts  []Attempt
}

func (r FieldResult) Resolved() bool { return r.Value != nil }

// CandidateDate 返回参考日期往前 offset 年的同月同日。
// 2 月 29 日落在平年时取 2 月 28 日（只有年份会发给数据源）。
func CandidateDate(ref time.Time, offset int) time.Time {
	y := ref.Year() - offset
	m, d := ref.Month(), ref.Day()
	if m == time.February && d == 29 && !isLeap(y) {
		d = 28
	}
	return time.Date(y, m, d, 0, 0, 0, 0, ref.Location())
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// Resolve 解析单个字段：从参考年份开始逐年往前，最多 horizon 年，第一次拿到非 null 值即停止。
//
// 任何单次查询错误都被吞掉并视为“该年份无数据”；错误分类只记录在 Attempts 中。
// ctx 取消后不再发起查询，字段保持缺失。
func Resolve(ctx context.Context, src Source, ind domain.Indicator, code domain.RegionCode, ref time.Time, horizon int, log zerolog.Logger) FieldResult {
	res := FieldResult{Indicator: ind}

	for i := 0; i < horizon; i++ {
		year := CandidateDate(ref, i).Year()
		if ctx.Err() != nil {
			res.Attempts = append(res.Attempts, Attempt{Year: year, Outcome: domain.OutcomeCancelled, Err: ctx.Err()})
			break
		}

		r, err := src.Lookup(ctx, provider.Query{Indicator: ind.Code, Region: code, Year: year})
		outcome := provider.Classify(err)
		accepted := false
		if err == nil {
			if usable(r.Observations) {
				accepted = true
				if r.Cached {
					outcome = domain.OutcomeCacheHit
				}
			} else {
				outcome = domain.OutcomeNoData
			}
		}

		res.Attempts = append(res.Attempts, Attempt{Year: year, Outcome: outcome, Err: err})
		log.Debug().
			Str("region", string(code)).
			Str("indicator", ind.Code).
			Int("year", year).
			Str("outcome", outcome).
			Err(err).
			Msg("attempt")

		if accepted {
			v := *r.Observations[0].Value
			res.Value = &v
			res.Year = year
			res.Offset = i
			return res
		}
	}
	return res
}

// Execute 对每个地区、每个指标顺序执行 Resolve，返回完整结果集与 report。
//
// 不变量：
// - 每个地区恰好产出一条记录（即使全部缺失或中途取消）
// - 每条记录包含目录中的每个字段（缺失为 nil）
// - 单次查询失败永远不会中止整个运行
func Execute(ctx context.Context, p Params, src Source, obs Observer) (domain.Snapshot, domain.RunReport) {
	started := time.Now().UTC()
	if obs != nil {
		obs.OnStart(p)
	}

	snap := domain.Snapshot{
		Catalog: p.Indicators,
		Records: make(map[domain.RegionCode]domain.CountryRecord, len(p.Regions)),
	}
	rr := domain.RunReport{
		Provider:      p.Provider,
		ReferenceDate: p.ReferenceDate.Format("2006-01-02"),
		Horizon:       p.Horizon,
		Output:        p.Output,
		DryRun:        p.DryRun,
		StartedAt:     started,
		Regions:       make([]domain.RegionResult, 0, len(p.Regions)),
	}

	total := len(p.Regions)
	for idx, rg := range p.Regions {
		oneStarted := time.Now()

		values := make([]*float64, len(p.Indicators))
		fields := make([]FieldResult, 0, len(p.Indicators))
		for j, ind := range p.Indicators {
			r := Resolve(ctx, src, ind, rg.Code, p.ReferenceDate, p.Horizon, p.Log)
			values[j] = r.Value
			fields = append(fields, r)
		}

		rec := domain.CountryRecord{Name: rg.Name, Values: values}
		snap.Records[rg.Code] = rec
		rr.Regions = append(rr.Regions, regionTrace(rg, fields))

		if obs != nil {
			obs.OnRegionDone(idx+1, total, rg, rec, fields, time.Since(oneStarted))
		}
	}

	rr.Interrupted = ctx.Err() != nil
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	if obs != nil {
		obs.OnDone(rr)
	}
	return snap, rr
}

func regionTrace(rg domain.Region, fields []FieldResult) domain.RegionResult {
	out := domain.RegionResult{
		Code:   string(rg.Code),
		Name:   rg.Name,
		Fields: make([]domain.FieldTrace, 0, len(fields)),
	}
	for _, f := range fields {
		ft := domain.FieldTrace{
			Field:     f.Indicator.Field,
			Indicator: f.Indicator.Code,
			Status:    domain.FieldStatusAbsent,
			Attempts:  make([]domain.AttemptTrace, 0, len(f.Attempts)),
		}
		if f.Resolved() {
			ft.Status = domain.FieldStatusResolved
			ft.Year = f.Year
			ft.Offset = f.Offset
		}
		for _, a := range f.Attempts {
			at := domain.AttemptTrace{Year: a.Year, Outcome: a.Outcome}
			if a.Err != nil {
				at.Error = a.Err.Error()
			}
			ft.Attempts = append(ft.Attempts, at)
		}
		out.Fields = append(out.Fields, ft)
	}
	return out
}
