package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/John-Robertt/natdata/internal/domain"
)

const noDataBody = `[{"page":0,"pages":0,"per_page":50,"total":0,"sourceid":null,"lastupdated":"2025-07-01"},null]`

// newWorldBank 模拟 World Bank API：只有 TST 的 SP.POP.TOTL 在 2021 年有值 42，其余一律无数据。
func newWorldBank(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v2/country/TST/indicator/SP.POP.TOTL" && r.URL.Query().Get("date") == "2021" {
			_, _ = w.Write([]byte(`[{"page":1,"pages":1,"per_page":50,"total":1},[{"indicator":{"id":"SP.POP.TOTL","value":"Population, total"},"country":{"id":"TL","value":"Testland"},"countryiso3code":"TST","date":"2021","value":42}]]`))
			return
		}
		_, _ = w.Write([]byte(noDataBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setupWorkspace 准备 cwd：natdata.json（不限速、不重试）+ 两个地区。
func setupWorkspace(t *testing.T, baseURL string) string {
	t.Helper()
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "natdata.json"), `{
		"base_url": "`+baseURL+`",
		"reference_date": "2024-06-01",
		"regions": "regions.csv",
		"rate_per_second": 0,
		"retry_max": 0,
		"timeout_seconds": 5
	}`)
	writeFile(t, filepath.Join(cwd, "regions.csv"), "name,alpha_3\nTestland,TST\nNowhere,NWH\n")
	return cwd
}

func run(t *testing.T, ctx context.Context, cwd string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(ctx, cwd, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestFetch_WritesDataJSONAndReport(t *testing.T) {
	var hits int64
	srv := newWorldBank(t, &hits)
	cwd := setupWorkspace(t, srv.URL)

	code, stdout, stderr := run(t, context.Background(), cwd, "fetch", "--xlsx", "data.xlsx")
	if code != 0 {
		t.Fatalf("exit=%d\nstderr=%s", code, stderr)
	}

	b, err := os.ReadFile(filepath.Join(cwd, "data.json"))
	if err != nil {
		t.Fatalf("读取 data.json 失败：%v", err)
	}
	want := `{"NWH":{"id":"Nowhere","pop":null,"gdpNom":null,"gdpPerCapNom":null,"landArea":null},` +
		`"TST":{"id":"Testland","pop":42,"gdpNom":null,"gdpPerCapNom":null,"landArea":null}}` + "\n"
	if string(b) != want {
		t.Fatalf("data.json=%s\nwant=%s", b, want)
	}
	if _, err := os.Stat(filepath.Join(cwd, "data.xlsx")); err != nil {
		t.Fatalf("xlsx 未写出：%v", err)
	}
	if _, err := os.Stat(filepath.Join(cwd, ".natdata-cache", ReportName)); err != nil {
		t.Fatalf("report.json 未写出：%v", err)
	}

	// stdout 非 TTY：必须且仅是一个 RunReport JSON。
	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout)
	}
	if rr.Summary.Regions != 2 || rr.Summary.Resolved != 1 || rr.Summary.Absent != 7 || rr.Summary.Fallbacks != 1 {
		t.Fatalf("summary=%+v", rr.Summary)
	}
	if rr.Interrupted || rr.DryRun {
		t.Fatalf("interrupted=%v dry_run=%v", rr.Interrupted, rr.DryRun)
	}
	if !strings.Contains(stderr, "完成：regions=2") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr)
	}
	// 2 地区 x 4 指标 x 5 年，TST pop 在第 4 年命中。
	if got := atomic.LoadInt64(&hits); got != 2*4*5-1 {
		t.Fatalf("requests=%d", got)
	}

	// 第二次运行：有值的响应来自缓存。
	code, stdout, stderr = run(t, context.Background(), cwd, "fetch")
	if code != 0 {
		t.Fatalf("exit=%d\nstderr=%s", code, stderr)
	}
	rr = domain.RunReport{}
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout=%q: %v", stdout, err)
	}
	if rr.Summary.CacheHits != 1 {
		t.Fatalf("cache_hits=%d", rr.Summary.CacheHits)
	}
}

func TestFetch_DryRunWritesNothing(t *testing.T) {
	var hits int64
	srv := newWorldBank(t, &hits)
	cwd := setupWorkspace(t, srv.URL)

	code, stdout, stderr := run(t, context.Background(), cwd, "fetch", "--dry-run", "--horizon", "4")
	if code != 0 {
		t.Fatalf("exit=%d\nstderr=%s", code, stderr)
	}
	for _, p := range []string{"data.json", ".natdata-cache"} {
		if _, err := os.Stat(filepath.Join(cwd, p)); !os.IsNotExist(err) {
			t.Fatalf("dry-run 不应写出 %s：%v", p, err)
		}
	}
	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout=%q: %v", stdout, err)
	}
	if !rr.DryRun || rr.Horizon != 4 || rr.Summary.Resolved != 1 {
		t.Fatalf("report=%+v", rr)
	}
}

func TestFetch_CancelledDoesNotWriteData(t *testing.T) {
	var hits int64
	srv := newWorldBank(t, &hits)
	cwd := setupWorkspace(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, stdout, _ := run(t, ctx, cwd, "fetch")
	if code != 1 {
		t.Fatalf("exit=%d, want 1", code)
	}
	if _, err := os.Stat(filepath.Join(cwd, "data.json")); !os.IsNotExist(err) {
		t.Fatalf("中断时不应写出 data.json：%v", err)
	}
	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout=%q: %v", stdout, err)
	}
	if !rr.Interrupted || rr.Summary.Regions != 2 || rr.Summary.Resolved != 0 {
		t.Fatalf("report=%+v", rr)
	}
}

func TestExitCodes(t *testing.T) {
	cwd := t.TempDir()
	cases := []struct {
		name string
		args []string
		want int
	}{
		{"unknown command", []string{"bogus"}, 2},
		{"unexpected arg", []string{"fetch", "extra"}, 2},
		{"bad flag value", []string{"fetch", "--horizon", "abc"}, 2},
		{"invalid horizon", []string{"fetch", "--horizon", "0"}, 1},
		{"missing config", []string{"fetch", "--config", "nope.json"}, 1},
		{"missing regions", []string{"regions", "--regions", "nope.csv"}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := run(t, context.Background(), cwd, tc.args...)
			if code != tc.want {
				t.Fatalf("exit=%d, want %d\nstderr=%s", code, tc.want, stderr)
			}
		})
	}
}

func TestRegionsAndIndicators(t *testing.T) {
	cwd := setupWorkspace(t, "http://127.0.0.1:1")

	code, stdout, stderr := run(t, context.Background(), cwd, "regions")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	if stdout != "NWH\tNowhere\nTST\tTestland\n" {
		t.Fatalf("regions stdout=%q", stdout)
	}

	code, stdout, stderr = run(t, context.Background(), cwd, "indicators")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	want := "pop\tSP.POP.TOTL\ngdpNom\tNY.GDP.MKTP.CD\ngdpPerCapNom\tNY.GDP.PCAP.CD\nlandArea\tAG.LND.TOTL.K2\n"
	if stdout != want {
		t.Fatalf("indicators stdout=%q", stdout)
	}
}
