package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/natdata/internal/app/fetch"
	"github.com/John-Robertt/natdata/internal/domain"
	"github.com/John-Robertt/natdata/internal/infra/httpx"
	"github.com/John-Robertt/natdata/internal/infra/logx"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是 cwd 下默认读取的配置文件名（可选）。
	FileName = "natdata.json"

	DefaultProvider = "worldbank"
	DefaultOut      = "data.json"
	DefaultCacheDir = ".natdata-cache"

	// MaxHorizon 是 horizon 的上限（回看 50 年已远超任何指标的发布滞后）。
	MaxHorizon = 50
)

// DateLayout 是 reference_date / --date 的格式。
const DateLayout = "2006-01-02"

// now 仅供测试替换。
var now = time.Now

// CLIArgs 是 CLI 暴露的覆盖项；*Set 表示“显式指定”，用于区分零值与未指定。
type CLIArgs struct {
	ConfigPath string

	Out      string
	XLSXOut  string
	Regions  string
	Date     string
	Provider string
	BaseURL  string
	CacheDir string
	LogLevel string

	Horizon    int
	HorizonSet bool

	TimeoutSeconds int
	TimeoutSet     bool

	NoCache    bool
	NoCacheSet bool
}

// FileConfig 对应 natdata.json 的解析结构。
type FileConfig struct {
	Out            string             `json:"out"`
	XLSXOut        string             `json:"xlsx_out"`
	Regions        string             `json:"regions"`
	ReferenceDate  string             `json:"reference_date"`
	Horizon        int                `json:"horizon"`
	Indicators     []domain.Indicator `json:"indicators"`
	Provider       string             `json:"provider"`
	BaseURL        string             `json:"base_url"`
	TimeoutSeconds int                `json:"timeout_seconds"`
	RetryMax       *int               `json:"retry_max"`
	RatePerSecond  *float64           `json:"rate_per_second"`
	Proxy          *ProxyConfig       `json:"proxy"`
	CacheDir       string             `json:"cache_dir"`
	NoCache        *bool              `json:"no_cache"`
	LogLevel       string             `json:"log_level"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并规范化后的最终配置；路径均为绝对路径（URL 形式的 Regions 除外）。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的配置文件；未读取任何文件时为空。
	ConfigPath string

	Out     string
	XLSXOut string
	Regions string

	ReferenceDate time.Time
	Horizon       int
	Indicators    domain.Catalog

	Provider      string
	BaseURL       string
	Timeout       time.Duration
	RetryMax      int
	RatePerSecond float64
	ProxyURL      string

	CacheDir string
	NoCache  bool
	LogLevel string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件并与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 --config：必须存在，否则 config_not_found
// 2) 否则尝试 <cwd>/natdata.json（可选）
//
// 覆盖优先级：CLI > 配置文件 > 内置默认。indicators/retry_max/rate_per_second/proxy 仅由配置文件控制。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	explicit := strings.TrimSpace(cli.ConfigPath) != ""
	cfgPath := filepath.Join(cwdAbs, FileName)
	if explicit {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists && explicit {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	eff, err := merge(cwdAbs, cli, fc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if exists {
		eff.ConfigPath = cfgPath
	}
	return eff, nil
}

func merge(cwd string, cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		Out:      absCleanFrom(cwd, pick(cli.Out, fc.Out, DefaultOut)),
		Provider: pick(cli.Provider, fc.Provider, DefaultProvider),
		BaseURL:  pick(cli.BaseURL, fc.BaseURL, ""),
		CacheDir: absCleanFrom(cwd, pick(cli.CacheDir, fc.CacheDir, DefaultCacheDir)),
		LogLevel: strings.ToLower(pick(cli.LogLevel, fc.LogLevel, logx.DefaultLevel)),
	}

	if x := pick(cli.XLSXOut, fc.XLSXOut, ""); x != "" {
		eff.XLSXOut = absCleanFrom(cwd, x)
	}
	if r := pick(cli.Regions, fc.Regions, ""); r != "" {
		if isURL(r) {
			eff.Regions = r
		} else {
			eff.Regions = absCleanFrom(cwd, r)
		}
	}

	if err := validateProvider(eff.Provider); err != nil {
		return EffectiveConfig{}, err
	}
	if eff.BaseURL != "" && !isURL(eff.BaseURL) {
		return EffectiveConfig{}, fmt.Errorf("base_url 必须是 http/https URL：%q", eff.BaseURL)
	}
	if _, err := logx.ParseLevel(eff.LogLevel); err != nil {
		return EffectiveConfig{}, err
	}

	// reference_date：CLI > config > 今天
	ref := now()
	ref = time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	if d := pick(cli.Date, fc.ReferenceDate, ""); d != "" {
		t, err := time.Parse(DateLayout, d)
		if err != nil {
			return EffectiveConfig{}, fmt.Errorf("reference_date 必须是 YYYY-MM-DD：%q", d)
		}
		ref = t
	}
	eff.ReferenceDate = ref

	// horizon：CLI > config > 默认；0 在配置文件中视为未指定
	eff.Horizon = fetch.DefaultHorizon
	if cli.HorizonSet {
		eff.Horizon = cli.Horizon
	} else if fc.Horizon != 0 {
		eff.Horizon = fc.Horizon
	}
	if eff.Horizon < 1 || eff.Horizon > MaxHorizon {
		return EffectiveConfig{}, fmt.Errorf("horizon 必须在 [1, %d]，实际是 %d", MaxHorizon, eff.Horizon)
	}

	eff.Indicators = domain.DefaultCatalog()
	if len(fc.Indicators) > 0 {
		eff.Indicators = make(domain.Catalog, 0, len(fc.Indicators))
		for _, ind := range fc.Indicators {
			eff.Indicators = append(eff.Indicators, domain.Indicator{
				Field: strings.TrimSpace(ind.Field),
				Code:  strings.TrimSpace(ind.Code),
			})
		}
	} else if fc.Indicators != nil {
		return EffectiveConfig{}, fmt.Errorf("indicators 不能是空数组")
	}
	if err := eff.Indicators.Validate(); err != nil {
		return EffectiveConfig{}, err
	}

	timeoutSec := int(httpx.DefaultTimeout / time.Second)
	if cli.TimeoutSet {
		timeoutSec = cli.TimeoutSeconds
	} else if fc.TimeoutSeconds != 0 {
		timeoutSec = fc.TimeoutSeconds
	}
	if timeoutSec < 1 {
		return EffectiveConfig{}, fmt.Errorf("timeout_seconds 必须 >= 1，实际是 %d", timeoutSec)
	}
	eff.Timeout = time.Duration(timeoutSec) * time.Second

	eff.RetryMax = httpx.DefaultRetryMax
	if fc.RetryMax != nil {
		eff.RetryMax = *fc.RetryMax
	}
	if eff.RetryMax < 0 || eff.RetryMax > 10 {
		return EffectiveConfig{}, fmt.Errorf("retry_max 必须在 [0, 10]，实际是 %d", eff.RetryMax)
	}

	eff.RatePerSecond = httpx.DefaultRatePerSecond
	if fc.RatePerSecond != nil {
		eff.RatePerSecond = *fc.RatePerSecond
	}
	if eff.RatePerSecond < 0 {
		return EffectiveConfig{}, fmt.Errorf("rate_per_second 不能为负数：%v", eff.RatePerSecond)
	}

	if fc.Proxy != nil {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if eff.ProxyURL != "" {
		u, err := url.Parse(eff.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 无效：%q", eff.ProxyURL)
		}
	}

	// no_cache：CLI > config > 默认 false
	if cli.NoCacheSet {
		eff.NoCache = cli.NoCache
	} else if fc.NoCache != nil {
		eff.NoCache = *fc.NoCache
	}

	return eff, nil
}

// pick 返回第一个非空（去空白后）的值。
func pick(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func validateProvider(p string) error {
	switch p {
	case "worldbank":
		return nil
	case "":
		return fmt.Errorf("provider 不能为空")
	default:
		return fmt.Errorf("provider 只能是 worldbank，实际是 %q", p)
	}
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件；exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
