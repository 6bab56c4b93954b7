// Package region 构造地区目录（名称 -> ISO 3166-1 alpha-3），一次运行只构造一次，之后只读。
package region

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/John-Robertt/natdata/internal/domain"
)

// iso3166.csv 的名称与前端按名称展示的国家名一致（ISO 3166-1 英文短名）。
//
//go:embed iso3166.csv
var defaultCSV []byte

// Default 返回内置的 ISO 3166-1 地区目录（按名称排序）。
func Default() ([]domain.Region, error) {
	rows, err := parseCSV(bytes.NewReader(defaultCSV))
	if err != nil {
		return nil, fmt.Errorf("内置地区数据损坏：%w", err)
	}
	return FromRows(rows)
}

// Load 从 src 读取地区目录；src 为空时返回 Default()。
//
// 来源类型由 URL scheme 或扩展名决定：
// - http(s)://…、.html/.htm：HTML 表格（取第一个同时含名称列与 alpha-3 列的表格）
// - .xlsx / .xls：第一个工作表
// - .csv：带表头
// - .json：{"<name>": "<ALPHA3>"}
func Load(ctx context.Context, src string, c *http.Client) ([]domain.Region, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return Default()
	}

	rows, err := loadRows(ctx, src, c)
	if err != nil {
		return nil, fmt.Errorf("读取地区数据 %q 失败：%w", src, err)
	}
	regions, err := FromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("地区数据 %q 无效：%w", src, err)
	}
	return regions, nil
}

func loadRows(ctx context.Context, src string, c *http.Client) ([][]string, error) {
	if isURL(src) {
		b, err := download(ctx, c, src)
		if err != nil {
			return nil, err
		}
		return parseHTML(bytes.NewReader(b))
	}

	ext := strings.ToLower(filepath.Ext(src))
	switch ext {
	case ".html", ".htm", ".csv", ".json", ".xlsx", ".xls":
	default:
		return nil, fmt.Errorf("不支持的地区数据格式：%q（支持 .csv/.json/.xlsx/.xls/.html 或 http(s) URL）", ext)
	}

	b, err := os.ReadFile(src)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(b)
	switch ext {
	case ".html", ".htm":
		return parseHTML(r)
	case ".csv":
		return parseCSV(r)
	case ".json":
		return parseJSON(b)
	case ".xlsx":
		return parseXLSX(r)
	default:
		return parseXLS(r)
	}
}

func isURL(s string) bool {
	low := strings.ToLower(s)
	return strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://")
}

func download(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// 表头匹配按优先级排列：越靠前越具体。
var (
	nameHeaders = []string{"name", "country name", "english short name", "country"}
	codeHeaders = []string{"alpha_3", "alpha-3", "alpha3", "alpha-3 code", "iso3", "iso 3166-1 alpha-3", "code"}
)

var (
	parenRE    = regexp.MustCompile(`\([^)]*\)`)
	footnoteRE = regexp.MustCompile(`\[[^\]]*\]`)
)

func normHeader(s string) string {
	s = parenRE.ReplaceAllString(s, "")
	s = footnoteRE.ReplaceAllString(s, "")
	return strings.ToLower(normSpace(s))
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

// detectColumns 在表头中定位名称列与代码列。
func detectColumns(header []string) (nameIdx, codeIdx int, ok bool) {
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = normHeader(h)
	}
	find := func(cands []string) int {
		for _, c := range cands {
			for i, h := range norm {
				if h == c {
					return i
				}
			}
		}
		return -1
	}
	nameIdx, codeIdx = find(nameHeaders), find(codeHeaders)
	return nameIdx, codeIdx, nameIdx >= 0 && codeIdx >= 0 && nameIdx != codeIdx
}

// FromRows 把“首行为表头”的二维表转换为地区目录。
//
// 规则：
// - 代码去空白并转大写；非法代码或空名称的行直接跳过（参考表里常有注释行/汇总行）
// - 名称或代码重复：报错（目录必须一一对应）
// - 结果按名称排序
func FromRows(rows [][]string) ([]domain.Region, error) {
	if len(rows) == 0 {
		return nil, errors.New("没有任何行")
	}
	nameIdx, codeIdx, ok := detectColumns(rows[0])
	if !ok {
		return nil, fmt.Errorf("表头缺少名称列或 alpha-3 列：%q", rows[0])
	}

	var (
		out     []domain.Region
		byName  = map[string]domain.RegionCode{}
		byCode  = map[domain.RegionCode]string{}
		maxCell = nameIdx
	)
	if codeIdx > maxCell {
		maxCell = codeIdx
	}

	for _, row := range rows[1:] {
		if len(row) <= maxCell {
			continue
		}
		name := normSpace(footnoteRE.ReplaceAllString(row[nameIdx], ""))
		code, ok := domain.ParseRegionCode(row[codeIdx])
		if name == "" || !ok {
			continue
		}
		if prev, dup := byName[name]; dup {
			return nil, fmt.Errorf("重复的地区名称：%q（%s 与 %s）", name, prev, code)
		}
		if prev, dup := byCode[code]; dup {
			return nil, fmt.Errorf("重复的地区代码：%s（%q 与 %q）", code, prev, name)
		}
		byName[name] = code
		byCode[code] = name
		out = append(out, domain.Region{Name: name, Code: code})
	}
	if len(out) == 0 {
		return nil, errors.New("没有任何有效地区")
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
