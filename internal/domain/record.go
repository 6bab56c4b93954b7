package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CountryRecord 是单个地区的一条输出记录。
//
// 约束：
// - Values 与 Catalog 一一对应（同序同长）；nil 表示缺失，序列化为 null
// - 由 fetch 一次性构造，之后不再修改
type CountryRecord struct {
	Name   string
	Values []*float64
}

// Value 按字段名取值；字段不在目录中时 ok=false。
func (r CountryRecord) Value(c Catalog, field string) (v *float64, ok bool) {
	for i, ind := range c {
		if ind.Field != field {
			continue
		}
		if i >= len(r.Values) {
			return nil, true
		}
		return r.Values[i], true
	}
	return nil, false
}

// Snapshot 是一次运行的完整产物：region code -> CountryRecord。
type Snapshot struct {
	Catalog Catalog
	Records map[RegionCode]CountryRecord
}

// Codes 返回按字典序排列的 region code（输出顺序即此顺序）。
func (s Snapshot) Codes() []RegionCode {
	out := make([]RegionCode, 0, len(s.Records))
	for c := range s.Records {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON 输出前端直接消费的扁平结构：
//
//	{"USA": {"id": "United States", "pop": 331893745, "gdpNom": null, ...}, ...}
//
// 记录内 id 固定在首位，其余字段按目录顺序；缺失值必须显式输出 null，不允许省略 key。
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, code := range s.Codes() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONKey(&buf, string(code)); err != nil {
			return nil, err
		}
		if err := s.Records[code].encode(&buf, s.Catalog); err != nil {
			return nil, fmt.Errorf("region %s: %w", code, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r CountryRecord) encode(buf *bytes.Buffer, c Catalog) error {
	if len(r.Values) != len(c) {
		return fmt.Errorf("记录字段数 %d 与指标目录 %d 不一致", len(r.Values), len(c))
	}
	buf.WriteByte('{')
	if err := writeJSONKey(buf, FieldID); err != nil {
		return err
	}
	name, err := json.Marshal(r.Name)
	if err != nil {
		return err
	}
	buf.Write(name)

	for i, ind := range c {
		buf.WriteByte(',')
		if err := writeJSONKey(buf, ind.Field); err != nil {
			return err
		}
		v := r.Values[i]
		if v == nil {
			buf.WriteString("null")
			continue
		}
		b, err := json.Marshal(*v)
		if err != nil {
			return fmt.Errorf("字段 %s：%w", ind.Field, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return nil
}

func writeJSONKey(buf *bytes.Buffer, k string) error {
	b, err := json.Marshal(k)
	if err != nil {
		return err
	}
	buf.Write(b)
	buf.WriteByte(':')
	return nil
}
