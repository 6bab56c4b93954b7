package domain

// Observation 是数据源针对（指标, 地区, 日期）返回的单个数据点。
// Value 为 nil 表示数据源给出了该期但值为空。
type Observation struct {
	Indicator string
	Region    string
	Date      string
	Value     *float64
}
