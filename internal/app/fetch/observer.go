package fetch

import (
	"time"

	"github.com/John-Robertt/natdata/internal/domain"
)

// Observer 用于把“运行进度/地区结果”从核心执行流程中解耦出来。
//
// 约束：fetch 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
type Observer interface {
	// OnStart 在 Execute 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(p Params)
	// OnRegionDone 在某个地区的全部指标解析完成时调用（每个地区恰好一次）。
	OnRegionDone(idx, total int, region domain.Region, rec domain.CountryRecord, fields []FieldResult, dur time.Duration)
	// OnDone 在 report 定稿后调用。
	OnDone(rr domain.RunReport)
}
