// Package logx 统一构造 zerolog 日志器：诊断信息一律写 stderr，不污染 stdout 的 JSON 契约。
package logx

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultLevel 是未配置 log_level 时的级别。
const DefaultLevel = "info"

// ParseLevel 解析 debug/info/warn/error（大小写不敏感）；空串视为 DefaultLevel。
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = DefaultLevel
	}
	switch s {
	case "debug", "info", "warn", "error":
		return zerolog.ParseLevel(s)
	default:
		return zerolog.InfoLevel, fmt.Errorf("log_level 只能是 debug|info|warn|error，实际是 %q", s)
	}
}

// New 构造日志器。console=true 时输出人类可读格式（交互终端），否则单行 JSON。
func New(w io.Writer, level zerolog.Level, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
