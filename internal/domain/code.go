package domain

import (
	"regexp"
	"strings"
)

// RegionCode 是地区的唯一主键（ISO 3166-1 alpha-3，形如 USA）。
type RegionCode string

var regionCodeRE = regexp.MustCompile(`^[A-Z]{3}$`)

// ParseRegionCode 校验并规范化 alpha-3 代码：去空白、转大写，必须恰好 3 个 ASCII 字母。
func ParseRegionCode(s string) (RegionCode, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !regionCodeRE.MatchString(s) {
		return "", false
	}
	return RegionCode(s), true
}

// Region 是地区目录中的一项：人类可读名称 + alpha-3 代码。
type Region struct {
	Name string
	Code RegionCode
}
