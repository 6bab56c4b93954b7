package region

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	excelize "github.com/360EntSecGroup-Skylar/excelize/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/anrid/xls"
)

func parseCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

// parseJSON 读取 {"<name>": "<ALPHA3>"} 形态。
func parseJSON(b []byte) ([][]string, error) {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(m)+1)
	rows = append(rows, []string{"name", "alpha_3"})
	for _, n := range names {
		rows = append(rows, []string{n, m[n]})
	}
	return rows, nil
}

// parseHTML 取第一个表头能识别出名称列与 alpha-3 列的 <table>。
func parseHTML(r io.Reader) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var found [][]string
	doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		var rows [][]string
		tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, normSpace(c.Text()))
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		if len(rows) == 0 {
			return true
		}
		if _, _, ok := detectColumns(rows[0]); !ok {
			return true
		}
		found = rows
		return false
	})
	if found == nil {
		return nil, errors.New("未找到包含名称列与 alpha-3 列的表格")
	}
	return found, nil
}

func parseXLSX(r io.Reader) ([][]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("工作簿没有工作表")
	}
	return wb.GetRows(sheets[0])
}

func parseXLS(r io.ReadSeeker) (rows [][]string, err error) {
	// xls 解析器遇到损坏文件会 panic。
	defer func() {
		if v := recover(); v != nil {
			rows, err = nil, fmt.Errorf("xls 解析失败：%v", v)
		}
	}()

	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("工作簿没有工作表")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		var cols []string
		for j := 0; j <= row.LastCol(); j++ {
			cols = append(cols, row.Col(j))
		}
		rows = append(rows, cols)
	}
	return rows, nil
}
