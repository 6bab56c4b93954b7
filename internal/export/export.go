// Package export 把 Snapshot 落盘（data.json / 可选 xlsx）。
package export

import (
	"encoding/json"
	"fmt"

	excelize "github.com/360EntSecGroup-Skylar/excelize/v2"

	"github.com/John-Robertt/natdata/internal/domain"
	"github.com/John-Robertt/natdata/internal/infra/fsx"
)

// SheetName 是 xlsx 导出中唯一的工作表名。
const SheetName = "countries"

// WriteJSON 以 Snapshot 的扁平 JSON 形态原子写入 path。
func WriteJSON(path string, snap domain.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("编码 %s 失败：%w", path, err)
	}
	b = append(b, '\n')
	if err := fsx.WriteFile(path, b); err != nil {
		return fmt.Errorf("写入 %s 失败：%w", path, err)
	}
	return nil
}

// WriteXLSX 导出为单表工作簿：表头 code,id,<fields…>，按 code 排序，缺失值留空。
func WriteXLSX(path string, snap domain.Snapshot) error {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", SheetName)

	header := []interface{}{"code", domain.FieldID}
	for _, field := range snap.Catalog.Fields() {
		header = append(header, field)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("写入表头失败：%w", err)
	}

	for i, code := range snap.Codes() {
		rec := snap.Records[code]
		if len(rec.Values) != len(snap.Catalog) {
			return fmt.Errorf("region %s: 记录字段数 %d 与指标目录 %d 不一致", code, len(rec.Values), len(snap.Catalog))
		}
		row := []interface{}{string(code), rec.Name}
		for _, v := range rec.Values {
			if v == nil {
				row = append(row, nil)
				continue
			}
			row = append(row, *v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("region %s: %w", code, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("编码 %s 失败：%w", path, err)
	}
	if err := fsx.WriteFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("写入 %s 失败：%w", path, err)
	}
	return nil
}
