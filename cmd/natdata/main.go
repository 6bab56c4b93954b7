package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/natdata/internal/config"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		os.Exit(1)
	}

	// Ctrl-C：停止发起新查询，已完成的地区照常写入 report。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, cwd, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError 携带退出码；其它错误一律视为用法错误（exit 2）。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(err error) error { return &exitError{code: 1, err: err} }

// env 是一次命令执行的外部环境（测试直接注入）。
type env struct {
	cwd    string
	stdout io.Writer
	stderr io.Writer
}

func execute(ctx context.Context, cwd string, args []string, stdout, stderr io.Writer) int {
	e := env{cwd: cwd, stdout: stdout, stderr: stderr}
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && ee.code != 0 {
			fmt.Fprintf(stderr, "错误：%v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	_ = root.Usage()
	return 2
}

func newRootCmd(e env) *cobra.Command {
	root := &cobra.Command{
		Use:           "natdata",
		Short:         "从 World Bank 抓取各国宏观指标，生成按 ISO3 索引的 data.json",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newFetchCmd(e), newRegionsCmd(e), newIndicatorsCmd(e))
	return root
}

// cliFlags 是 fetch/regions/indicators 共用的覆盖项。
type cliFlags struct {
	configPath string
	out        string
	xlsx       string
	regions    string
	date       string
	horizon    int
	provider   string
	baseURL    string
	timeout    int
	cacheDir   string
	noCache    bool
	dryRun     bool
	logLevel   string
	debug      bool
}

func (f *cliFlags) args(cmd *cobra.Command) config.CLIArgs {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	return config.CLIArgs{
		ConfigPath:     f.configPath,
		Out:            f.out,
		XLSXOut:        f.xlsx,
		Regions:        f.regions,
		Date:           f.date,
		Provider:       f.provider,
		BaseURL:        f.baseURL,
		CacheDir:       f.cacheDir,
		LogLevel:       f.logLevel,
		Horizon:        f.horizon,
		HorizonSet:     changed("horizon"),
		TimeoutSeconds: f.timeout,
		TimeoutSet:     changed("timeout"),
		NoCache:        f.noCache,
		NoCacheSet:     changed("no-cache"),
	}
}

func newFetchCmd(e env) *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "抓取全部地区的指标并写出 data.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd.Context(), e, f, f.args(cmd))
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "配置文件路径（默认读取 ./natdata.json，不存在则忽略）")
	fs.StringVar(&f.out, "out", "", "输出 JSON 路径（默认 data.json）")
	fs.StringVar(&f.xlsx, "xlsx", "", "额外导出 xlsx 的路径（可选）")
	fs.StringVar(&f.regions, "regions", "", "地区数据来源：.csv/.json/.xlsx/.xls/.html 或 http(s) URL（默认内置 ISO 3166-1）")
	fs.StringVar(&f.date, "date", "", "参考日期 YYYY-MM-DD（默认今天）")
	fs.IntVar(&f.horizon, "horizon", 0, "最多回看的年份数，含参考年份（默认 5）")
	fs.StringVar(&f.provider, "provider", "", "数据源（默认 worldbank）")
	fs.StringVar(&f.baseURL, "base-url", "", "数据源 API 入口（镜像/测试用）")
	fs.IntVar(&f.timeout, "timeout", 0, "单次请求超时秒数（默认 20）")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "响应缓存与 report.json 目录（默认 .natdata-cache）")
	fs.BoolVar(&f.noCache, "no-cache", false, "不读写响应缓存")
	fs.BoolVar(&f.dryRun, "dry-run", false, "只抓取并输出 report，不写任何文件")
	fs.StringVar(&f.logLevel, "log-level", "", "日志级别 debug|info|warn|error（默认 info）")
	fs.BoolVar(&f.debug, "debug", false, "输出每个地区的完整记录（隐含 --log-level debug）")
	return cmd
}

func newRegionsCmd(e env) *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "打印地区目录（CODE<TAB>name）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegions(cmd.Context(), e, f.args(cmd))
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "配置文件路径")
	cmd.Flags().StringVar(&f.regions, "regions", "", "地区数据来源（默认内置 ISO 3166-1）")
	return cmd
}

func newIndicatorsCmd(e env) *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "打印生效的指标目录（field<TAB>code）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := config.LoadEffective(e.cwd, f.args(cmd))
			if err != nil {
				return fail(err)
			}
			for _, ind := range eff.Indicators {
				fmt.Fprintf(e.stdout, "%s\t%s\n", ind.Field, ind.Code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "配置文件路径")
	return cmd
}
