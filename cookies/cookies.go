package cookies

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

const defaultCookiesFile = "bilibili_cookies.json"

// Cookier cookies 文件的读写
type Cookier interface {
	LoadCookies() ([]byte, error)
	SaveCookies(data []byte) error
}

type localCookie struct {
	path string
}

func NewLoadCookie(path string) Cookier {
	if path == "" {
		path = GetCookiesFilePath()
	}
	return &localCookie{path: path}
}

// LoadCookies 从文件中加载 cookies
func (c *localCookie) LoadCookies() ([]byte, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cookies from file")
	}
	return data, nil
}

// SaveCookies 保存 cookies 到文件中，目录不存在时自动创建
func (c *localCookie) SaveCookies(data []byte) error {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create cookies dir")
		}
	}
	return errors.Wrap(os.WriteFile(c.path, data, 0o644), "failed to write cookies to file")
}

// GetCookiesFilePath 获取 cookies 文件路径。
// 优先使用 COOKIES_PATH 环境变量，否则放在系统临时目录下。
func GetCookiesFilePath() string {
	if path := os.Getenv("COOKIES_PATH"); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), defaultCookiesFile)
}

// GetPlatformCookiesFilePath 在基础路径上派生出某个平台专用的 cookies 文件，
// 例如 /tmp/bilibili_cookies.json -> /tmp/bilibili_cookies_bili.json
func GetPlatformCookiesFilePath(basePath, platform string) string {
	if basePath == "" {
		basePath = GetCookiesFilePath()
	}
	if platform == "" {
		return basePath
	}
	dir, name, ext := splitPath(basePath)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", name, platform, ext))
}

// ResetCookiesFiles 删除基础 cookies 文件以及同目录下派生的平台文件
func ResetCookiesFiles(basePath string) error {
	if basePath == "" {
		basePath = GetCookiesFilePath()
	}
	if err := os.Remove(basePath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove cookies file")
	}

	dir, name, ext := splitPath(basePath)
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("%s_*%s", name, ext)))
	if err != nil {
		return errors.Wrap(err, "glob derived cookies files")
	}
	for _, p := range matches {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", p)
		}
	}
	return nil
}

func splitPath(path string) (dir, name, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	name = strings.TrimSuffix(base, ext)
	if name == "" {
		name = "cookies"
	}
	return dir, name, ext
}

// ParseCookieHeader 解析浏览器复制出来的 "k1=v1; k2=v2" 形式的 cookie 串。
// 没有等号或名字为空的片段会被忽略。
func ParseCookieHeader(raw, domain string) []crawler.Cookie {
	var out []crawler.Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		out = append(out, crawler.Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
		})
	}
	return out
}

// ConvertCookies 把 cookies 转成请求头用的字符串和按名字索引的 map。
// 同名 cookie 以后出现的为准，header 按名字排序输出。
func ConvertCookies(cks []crawler.Cookie) (string, map[string]string) {
	m := make(map[string]string, len(cks))
	for _, c := range cks {
		m[c.Name] = c.Value
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+m[name])
	}
	return strings.Join(pairs, "; "), m
}
