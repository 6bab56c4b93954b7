package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/natdata/internal/infra/fsx"
	"github.com/John-Robertt/natdata/internal/provider"
)

// Store 提供 <cache_dir>/ 下的原始响应缓存读写。
//
// 布局：<root>/providers/<provider>/<indicator>/<region>/<year>.json
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - 正常运行：允许写（ReadOnly=false）
type Store struct {
	Root     string // <cache_dir>
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// ResponsePath 返回某次查询的缓存文件绝对路径。
func (s Store) ResponsePath(providerName string, q provider.Query) (string, error) {
	dir, name, err := s.responseLocation(providerName, q)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (s Store) ReadResponse(providerName string, q provider.Query) ([]byte, bool, error) {
	path, err := s.ResponsePath(providerName, q)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WriteResponse(providerName string, q provider.Query, body []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	dir, name, err := s.responseLocation(providerName, q)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(dir, name, body)
}

func (s Store) responseLocation(providerName string, q provider.Query) (dir, name string, err error) {
	p, err := cleanSegment("provider", strings.ToLower(providerName))
	if err != nil {
		return "", "", err
	}
	ind, err := cleanSegment("indicator", q.Indicator)
	if err != nil {
		return "", "", err
	}
	reg, err := cleanSegment("region", string(q.Region))
	if err != nil {
		return "", "", err
	}
	if q.Year <= 0 {
		return "", "", fmt.Errorf("非法年份：%d", q.Year)
	}
	dir = filepath.Join(s.Root, "providers", p, ind, reg)
	return dir, strconv.Itoa(q.Year) + ".json", nil
}

var segmentRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// cleanSegment 做最小约束：避免路径穿越；指标代码本身含 '.'（如 SP.POP.TOTL），因此只拒绝 "."/".."。
func cleanSegment(kind, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s 不能为空", kind)
	}
	if v == "." || v == ".." || !segmentRE.MatchString(v) {
		return "", fmt.Errorf("非法 %s：%q", kind, v)
	}
	return v, nil
}
