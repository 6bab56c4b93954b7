package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/John-Robertt/natdata/internal/app/fetch"
	"github.com/John-Robertt/natdata/internal/domain"
)

var (
	_ fetch.Observer = (*progressUI)(nil)
	_ fetch.Observer = logObserver{}
)

// dumper 用于 --debug：展开指针，不打印地址。
var dumper = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}

// progressUI 是交互终端下的进度输出。
//
// - 全部写到 stderr，不污染 stdout 的 JSON 契约
// - 每个地区一行；长时间没有地区完成时定期输出一行 keepalive
type progressUI struct {
	w     io.Writer
	p     *message.Printer
	debug bool

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	catalog     domain.Catalog

	total    int
	done     int
	resolved int
	absent   int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, debug bool) *progressUI {
	return &progressUI{
		w:                  w,
		p:                  message.NewPrinter(language.English),
		debug:              debug,
		keepaliveThreshold: 10 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (u *progressUI) OnStart(p fetch.Params) {
	now := time.Now()

	u.mu.Lock()
	defer u.mu.Unlock()

	u.startedAt = now
	u.catalog = p.Indicators
	u.total = len(p.Regions)

	mode := "write"
	if p.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(u.w, "[%s] natdata fetch (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintf(u.w, "  provider: %s\n", p.Provider)
	fmt.Fprintf(u.w, "  reference_date: %s horizon: %d\n", p.ReferenceDate.Format("2006-01-02"), p.Horizon)
	fmt.Fprintf(u.w, "  indicators: %s\n", formatCatalog(p.Indicators))
	fmt.Fprintf(u.w, "  regions: %d\n\n", u.total)

	u.lastPrinted = time.Now()
	if u.total > 0 && !u.tickerStarted {
		u.startTickerLocked()
	}
}

func (u *progressUI) OnRegionDone(idx, total int, rg domain.Region, rec domain.CountryRecord, fields []fetch.FieldResult, dur time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.done = idx
	u.total = total
	for _, f := range fields {
		if f.Resolved() {
			u.resolved++
		} else {
			u.absent++
		}
	}

	fmt.Fprintf(u.w, "[%d/%d] %s %s %s (%s)\n",
		idx, total, rg.Code, truncate(rg.Name, 40), formatFields(u.p, fields), formatShortDuration(dur),
	)
	if u.debug {
		dumper.Fdump(u.w, rec)
	}
	u.lastPrinted = time.Now()
}

func (u *progressUI) OnDone(rr domain.RunReport) {
	u.mu.Lock()
	defer u.mu.Unlock()

	// 先停 ticker，避免在结束打印后又冒出 keepalive。
	if u.tickerStarted {
		close(u.stopCh)
		u.tickerStarted = false
	}
	s := rr.Summary
	fmt.Fprintf(u.w, "\n字段: resolved=%s absent=%s fallbacks=%s elapsed=%s\n",
		u.p.Sprintf("%d", s.Resolved), u.p.Sprintf("%d", s.Absent), u.p.Sprintf("%d", s.Fallbacks),
		formatElapsed(rr.FinishedAt.Sub(rr.StartedAt)),
	)
}

func (u *progressUI) startTickerLocked() {
	u.stopCh = make(chan struct{})
	u.tickerStarted = true
	stop := u.stopCh

	interval := u.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := u.keepaliveThreshold
	if threshold <= 0 {
		threshold = 10 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				u.mu.Lock()
				if time.Since(u.lastPrinted) > threshold {
					fmt.Fprintf(u.w, "进度: done=%d/%d resolved=%d absent=%d elapsed=%s\n",
						u.done, u.total, u.resolved, u.absent, formatElapsed(time.Since(u.startedAt)),
					)
					u.lastPrinted = time.Now()
				}
				u.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// logObserver 用于非交互运行：每个地区一条结构化日志。
type logObserver struct {
	log   zerolog.Logger
	debug bool
}

func (o logObserver) OnStart(p fetch.Params) {
	o.log.Info().
		Str("provider", p.Provider).
		Str("reference_date", p.ReferenceDate.Format("2006-01-02")).
		Int("horizon", p.Horizon).
		Int("regions", len(p.Regions)).
		Strs("fields", p.Indicators.Fields()).
		Msg("开始抓取")
}

func (o logObserver) OnRegionDone(idx, total int, rg domain.Region, rec domain.CountryRecord, fields []fetch.FieldResult, dur time.Duration) {
	ev := o.log.Info().
		Int("idx", idx).
		Int("total", total).
		Str("code", string(rg.Code)).
		Str("name", rg.Name).
		Dur("dur", dur)
	absent := 0
	for _, f := range fields {
		if !f.Resolved() {
			absent++
			continue
		}
		ev = ev.Float64(f.Indicator.Field, *f.Value).Int(f.Indicator.Field+"_year", f.Year)
	}
	ev.Int("absent", absent).Msg("地区完成")

	if o.debug {
		o.log.Debug().Str("code", string(rg.Code)).Msg(dumper.Sdump(rec))
	}
}

func (o logObserver) OnDone(rr domain.RunReport) {
	s := rr.Summary
	o.log.Info().
		Int("regions", s.Regions).
		Int("resolved", s.Resolved).
		Int("absent", s.Absent).
		Int("fallbacks", s.Fallbacks).
		Int("cache_hits", s.CacheHits).
		Bool("interrupted", rr.Interrupted).
		Msg("抓取结束")
}

func formatCatalog(c domain.Catalog) string {
	parts := make([]string, 0, len(c))
	for _, ind := range c {
		parts = append(parts, ind.Field+"="+ind.Code)
	}
	return strings.Join(parts, " ")
}

// formatFields 输出 pop=331,893,745 gdpNom=- …；回退到更早年份时追加 @年份。
func formatFields(p *message.Printer, fields []fetch.FieldResult) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		s := f.Indicator.Field + "="
		if !f.Resolved() {
			parts = append(parts, s+"-")
			continue
		}
		s += formatNumber(p, *f.Value)
		if f.Offset > 0 {
			s += fmt.Sprintf("@%d", f.Year)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func formatNumber(p *message.Printer, v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return p.Sprintf("%d", int64(v))
	}
	return p.Sprintf("%.2f", v)
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if max <= 0 || len(r) <= max {
		return string(r)
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
