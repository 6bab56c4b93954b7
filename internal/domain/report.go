package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	FieldStatusResolved = "resolved"
	FieldStatusAbsent   = "absent"
)

// 单次尝试的结果分类。除 ok/cache_hit 外，其余一律视为“该年份无数据”并回退到更早年份；
// 分类只用于 report 解释原因，不改变回退行为。
const (
	OutcomeOK        = "ok"
	OutcomeCacheHit  = "cache_hit"
	OutcomeNoData    = "no_data"
	OutcomeTransport = "transport"
	OutcomeAPI       = "api"
	OutcomeParse     = "parse"
	OutcomeCancelled = "cancelled"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
// 它是诊断产物，不属于 data.json 的数据契约。
type RunReport struct {
	Provider      string `json:"provider"`
	ReferenceDate string `json:"reference_date"`
	Horizon       int    `json:"horizon"`
	Output        string `json:"output"`
	DryRun        bool   `json:"dry_run"`
	Interrupted   bool   `json:"interrupted"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary  `json:"summary"`
	Regions []RegionResult `json:"regions"`
}

type ReportSummary struct {
	Regions   int `json:"regions"`
	Fields    int `json:"fields"`
	Resolved  int `json:"resolved"`
	Absent    int `json:"absent"`
	Fallbacks int `json:"fallbacks"`

	CacheHits int `json:"cache_hits"`
	NoData    int `json:"no_data"`
	Transport int `json:"transport_errors"`
	API       int `json:"api_errors"`
	Parse     int `json:"parse_errors"`
}

type RegionResult struct {
	Code   string       `json:"code"`
	Name   string       `json:"name"`
	Fields []FieldTrace `json:"fields"`
}

type FieldTrace struct {
	Field     string `json:"field"`
	Indicator string `json:"indicator"`
	Status    string `json:"status"`
	// Year/Offset 仅在 resolved 时有意义；Offset=0 表示参考年份本身。
	Year     int            `json:"year,omitempty"`
	Offset   int            `json:"offset"`
	Attempts []AttemptTrace `json:"attempts"`
}

type AttemptTrace struct {
	Year    int    `json:"year"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) regions 稳定排序：按 code 字典序
// 3) summary 由 regions 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Regions, func(i, j int) bool {
		return r.Regions[i].Code < r.Regions[j].Code
	})

	var s ReportSummary
	s.Regions = len(r.Regions)
	for _, rg := range r.Regions {
		for _, f := range rg.Fields {
			s.Fields++
			switch f.Status {
			case FieldStatusResolved:
				s.Resolved++
				if f.Offset > 0 {
					s.Fallbacks++
				}
			case FieldStatusAbsent:
				s.Absent++
			}
			for _, a := range f.Attempts {
				switch a.Outcome {
				case OutcomeCacheHit:
					s.CacheHits++
				case OutcomeNoData:
					s.NoData++
				case OutcomeTransport:
					s.Transport++
				case OutcomeAPI:
					s.API++
				case OutcomeParse:
					s.Parse++
				}
			}
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// regions 为 nil 时输出 []，而不是 null。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	if a.Regions == nil {
		a.Regions = []RegionResult{}
	}
	return json.Marshal(a)
}
