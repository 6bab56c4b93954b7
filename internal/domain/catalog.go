package domain

import (
	"fmt"
	"strings"
)

// Indicator 把输出字段名（前端列名）关联到数据源的指标代码。
type Indicator struct {
	Field string `json:"field"`
	Code  string `json:"code"`
}

// Catalog 是有序的指标目录；顺序决定输出记录中的字段顺序。
type Catalog []Indicator

// FieldID 是每条记录固定携带的名称字段，指标字段不得与其重名。
const FieldID = "id"

// DefaultCatalog 返回内置的 World Bank 指标目录。
// 新增指标时需要同步修改前端的列定义。
func DefaultCatalog() Catalog {
	return Catalog{
		{Field: "pop", Code: "SP.POP.TOTL"},
		{Field: "gdpNom", Code: "NY.GDP.MKTP.CD"},
		{Field: "gdpPerCapNom", Code: "NY.GDP.PCAP.CD"},
		{Field: "landArea", Code: "AG.LND.TOTL.K2"},
	}
}

// Validate 检查目录：非空、字段/代码非空、字段唯一、字段不能是 id。
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("指标目录不能为空")
	}
	seen := make(map[string]bool, len(c))
	for i, ind := range c {
		f := strings.TrimSpace(ind.Field)
		if f == "" {
			return fmt.Errorf("第 %d 个指标缺少 field", i+1)
		}
		if strings.TrimSpace(ind.Code) == "" {
			return fmt.Errorf("指标 %q 缺少 code", f)
		}
		if f == FieldID {
			return fmt.Errorf("指标字段不能是保留名 %q", FieldID)
		}
		if seen[f] {
			return fmt.Errorf("重复的指标字段：%q", f)
		}
		seen[f] = true
	}
	return nil
}

// Fields 返回按目录顺序排列的字段名。
func (c Catalog) Fields() []string {
	out := make([]string, 0, len(c))
	for _, ind := range c {
		out = append(out, ind.Field)
	}
	return out
}
