package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/natdata/internal/app/fetch"
	"github.com/John-Robertt/natdata/internal/config"
	"github.com/John-Robertt/natdata/internal/domain"
	"github.com/John-Robertt/natdata/internal/export"
	"github.com/John-Robertt/natdata/internal/infra/cache"
	"github.com/John-Robertt/natdata/internal/infra/fsx"
	"github.com/John-Robertt/natdata/internal/infra/httpx"
	"github.com/John-Robertt/natdata/internal/infra/logx"
	"github.com/John-Robertt/natdata/internal/provider"
	"github.com/John-Robertt/natdata/internal/provider/worldbank"
	"github.com/John-Robertt/natdata/internal/region"
)

// ReportName 是 <cache_dir> 下的运行报告文件名。
const ReportName = "report.json"

func runFetch(ctx context.Context, e env, f cliFlags, cli config.CLIArgs) error {
	eff, err := config.LoadEffective(e.cwd, cli)
	if err != nil {
		return fail(err)
	}

	level, _ := logx.ParseLevel(eff.LogLevel)
	if f.debug {
		level = zerolog.DebugLevel
	}
	interactive := isTTY(e.stderr)
	log := logx.New(e.stderr, level, interactive)
	if eff.ConfigPath != "" {
		log.Debug().Str("config", eff.ConfigPath).Msg("已读取配置文件")
	}

	client, err := httpx.NewAPIClient(httpx.Options{
		ProxyURL:      eff.ProxyURL,
		Timeout:       eff.Timeout,
		RetryMax:      eff.RetryMax,
		RatePerSecond: eff.RatePerSecond,
		Logger:        log,
	})
	if err != nil {
		return fail(fmt.Errorf("初始化 HTTP client 失败：%w", err))
	}

	p, err := pickProvider(eff)
	if err != nil {
		return fail(err)
	}

	regions, err := region.Load(ctx, eff.Regions, client)
	if err != nil {
		return fail(err)
	}
	log.Debug().Int("regions", len(regions)).Int("indicators", len(eff.Indicators)).Msg("目录已加载")

	src := fetch.ProviderSource{Provider: p, Client: client, Log: log}
	if !eff.NoCache {
		// dry-run 只读缓存，不落盘。
		st := cache.New(eff.CacheDir, f.dryRun)
		src.Cache = &st
	}

	var obs fetch.Observer = logObserver{log: log, debug: f.debug}
	if interactive {
		obs = newProgressUI(e.stderr, f.debug)
	}

	params := fetch.Params{
		Provider:      p.Name(),
		Indicators:    eff.Indicators,
		Regions:       regions,
		ReferenceDate: eff.ReferenceDate,
		Horizon:       eff.Horizon,
		Output:        eff.Out,
		DryRun:        f.dryRun,
		Log:           log,
	}
	snap, rr := fetch.Execute(ctx, params, src, obs)

	if !f.dryRun {
		if err := writeReportFile(eff.CacheDir, rr); err != nil {
			emitReport(e.stdout, e.stderr, rr)
			return fail(fmt.Errorf("写入 %s 失败：%w", ReportName, err))
		}
	}

	// 中断的运行只有部分字段，不覆盖已有的 data.json。
	if rr.Interrupted {
		emitReport(e.stdout, e.stderr, rr)
		return fail(errors.New("运行被中断，未写出数据文件"))
	}

	if !f.dryRun {
		if err := export.WriteJSON(eff.Out, snap); err != nil {
			emitReport(e.stdout, e.stderr, rr)
			return fail(err)
		}
		if eff.XLSXOut != "" {
			if err := export.WriteXLSX(eff.XLSXOut, snap); err != nil {
				emitReport(e.stdout, e.stderr, rr)
				return fail(err)
			}
		}
	}

	emitReport(e.stdout, e.stderr, rr)
	if interactive {
		emitLocations(e.stderr, eff, f.dryRun)
	}
	return nil
}

func runRegions(ctx context.Context, e env, cli config.CLIArgs) error {
	eff, err := config.LoadEffective(e.cwd, cli)
	if err != nil {
		return fail(err)
	}
	client, err := httpx.NewAPIClient(httpx.Options{
		ProxyURL: eff.ProxyURL,
		Timeout:  eff.Timeout,
		RetryMax: eff.RetryMax,
		Logger:   logx.New(e.stderr, zerolog.WarnLevel, isTTY(e.stderr)),
	})
	if err != nil {
		return fail(err)
	}
	regions, err := region.Load(ctx, eff.Regions, client)
	if err != nil {
		return fail(err)
	}
	for _, r := range regions {
		fmt.Fprintf(e.stdout, "%s\t%s\n", r.Code, r.Name)
	}
	return nil
}

func pickProvider(eff config.EffectiveConfig) (provider.Provider, error) {
	reg, err := provider.NewRegistry(worldbank.Provider{BaseURL: eff.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("初始化 provider registry 失败：%w", err)
	}
	p, ok := reg.Get(eff.Provider)
	if !ok {
		return nil, fmt.Errorf("未知 provider：%q（可用：%v）", eff.Provider, reg.Names())
	}
	return p, nil
}

func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	line := summaryLine(rr)
	if isTTY(stdout) {
		fmt.Fprintln(stdout, line)
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, line)
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	line := fmt.Sprintf("完成：regions=%d resolved=%d absent=%d fallbacks=%d cache_hits=%d transport_errors=%d api_errors=%d",
		s.Regions, s.Resolved, s.Absent, s.Fallbacks, s.CacheHits, s.Transport, s.API,
	)
	if rr.Interrupted {
		line += " (interrupted)"
	}
	return line
}

func writeReportFile(dir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(dir, ReportName, b)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, dryRun bool) {
	if dryRun {
		fmt.Fprintln(w, "dry-run：未写入任何文件")
		return
	}
	fmt.Fprintf(w, "out: %s\n", eff.Out)
	if eff.XLSXOut != "" {
		fmt.Fprintf(w, "xlsx: %s\n", eff.XLSXOut)
	}
	fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.CacheDir, ReportName))
}
