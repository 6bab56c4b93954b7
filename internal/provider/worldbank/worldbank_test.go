package worldbank

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	providerx "github.com/John-Robertt/natdata/internal/provider"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	return b
}

func TestQueryURL(t *testing.T) {
	q := providerx.Query{Indicator: "SP.POP.TOTL", Region: "USA", Year: 2024}

	got := Provider{}.QueryURL(q)
	want := "https://api.worldbank.org/v2/country/USA/indicator/SP.POP.TOTL?date=2024&format=json&per_page=50"
	if got != want {
		t.Fatalf("URL 不一致：\n got=%s\nwant=%s", got, want)
	}

	got = Provider{BaseURL: "http://mirror.test/"}.QueryURL(q)
	if got != "http://mirror.test/v2/country/USA/indicator/SP.POP.TOTL?date=2024&format=json&per_page=50" {
		t.Fatalf("BaseURL 未生效：%s", got)
	}
}

func TestParse_OK(t *testing.T) {
	q := providerx.Query{Indicator: "SP.POP.TOTL", Region: "USA", Year: 2023}
	obs, err := Provider{}.Parse(q, readFixture(t, "usa_pop_2023.json"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("期望 1 个观测值，实际 %d", len(obs))
	}
	o := obs[0]
	if o.Value == nil || *o.Value != 334914895 {
		t.Fatalf("value 不符合预期：%v", o.Value)
	}
	if o.Region != "USA" || o.Indicator != "SP.POP.TOTL" || o.Date != "2023" {
		t.Fatalf("观测值字段不符合预期：%+v", o)
	}
}

func TestParse_NullValueIsNoObservation(t *testing.T) {
	q := providerx.Query{Indicator: "SP.POP.TOTL", Region: "USA", Year: 2026}
	obs, err := Provider{}.Parse(q, readFixture(t, "usa_pop_2026_null.json"))
	if !errors.Is(err, providerx.ErrNoObservation) {
		t.Fatalf("期望 ErrNoObservation，实际 %v", err)
	}
	if len(obs) != 1 || obs[0].Value != nil {
		t.Fatalf("仍应返回原始观测序列：%+v", obs)
	}
}

func TestParse_NullSeriesIsNoObservation(t *testing.T) {
	q := providerx.Query{Indicator: "SP.POP.TOTL", Region: "USA", Year: 2030}
	_, err := Provider{}.Parse(q, readFixture(t, "no_data.json"))
	if !errors.Is(err, providerx.ErrNoObservation) {
		t.Fatalf("期望 ErrNoObservation，实际 %v", err)
	}

	_, err = Provider{}.Parse(q, []byte(`[{"page":1},[]]`))
	if !errors.Is(err, providerx.ErrNoObservation) {
		t.Fatalf("空序列：期望 ErrNoObservation，实际 %v", err)
	}
}

func TestParse_APIError(t *testing.T) {
	q := providerx.Query{Indicator: "SP.POP.TOTL", Region: "XXX", Year: 2024}
	_, err := Provider{}.Parse(q, readFixture(t, "invalid_country.json"))
	var ae *providerx.APIError
	if !errors.As(err, &ae) {
		t.Fatalf("期望 *APIError，实际 %T %v", err, err)
	}
	if ae.ID != "120" {
		t.Fatalf("期望 id=120，实际 %q", ae.ID)
	}
}

func TestParse_Malformed(t *testing.T) {
	q := providerx.Query{Indicator: "SP.POP.TOTL", Region: "USA", Year: 2024}
	for _, body := range []string{"", "<html/>", "[]", `{"a":1}`, `[{"page":1},{"x":1}]`} {
		_, err := Provider{}.Parse(q, []byte(body))
		if err == nil {
			t.Fatalf("%q：期望错误，但得到 nil", body)
		}
		if errors.Is(err, providerx.ErrNoObservation) {
			t.Fatalf("%q：格式错误不应被视为 ErrNoObservation", body)
		}
	}
}

func TestFetch_AgainstTestServer(t *testing.T) {
	fixture := readFixture(t, "usa_pop_2023.json")
	var gotPath, gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotDate = r.URL.Query().Get("date")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fixture)
	}))
	defer srv.Close()

	p := Provider{BaseURL: srv.URL}
	q := providerx.Query{Indicator: "SP.POP.TOTL", Region: "USA", Year: 2023}
	obs, body, err := providerx.Lookup(context.Background(), p, q, srv.Client())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if gotPath != "/v2/country/USA/indicator/SP.POP.TOTL" || gotDate != "2023" {
		t.Fatalf("请求不符合预期：path=%s date=%s", gotPath, gotDate)
	}
	if len(body) == 0 || len(obs) != 1 || *obs[0].Value != 334914895 {
		t.Fatalf("结果不符合预期：obs=%+v", obs)
	}
}

func TestFetch_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := Provider{BaseURL: srv.URL}
	_, _, err := p.Fetch(context.Background(), providerx.Query{Indicator: "A", Region: "USA", Year: 2024}, srv.Client())
	var hs *providerx.HTTPStatusError
	if !errors.As(err, &hs) || hs.StatusCode != http.StatusBadGateway {
		t.Fatalf("期望 HTTP 502，实际 %v", err)
	}
}

func TestFetch_RejectsBadInput(t *testing.T) {
	p := Provider{}
	if _, _, err := p.Fetch(context.Background(), providerx.Query{Indicator: "A", Region: "USA", Year: 2024}, nil); err == nil {
		t.Fatalf("nil client：期望错误，但得到 nil")
	}
	if _, _, err := p.Fetch(context.Background(), providerx.Query{Indicator: "A", Region: "USA"}, http.DefaultClient); err == nil {
		t.Fatalf("year=0：期望错误，但得到 nil")
	}
}
