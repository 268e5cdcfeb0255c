package crawler

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// DefaultWorkBudget 详情页并发上限的默认值
const DefaultWorkBudget WorkBudget = 5

// AuthState 由 cookies 推导出的登录状态，不做持久化
type AuthState int

const (
	AuthUnknown AuthState = iota
	AuthUnauthenticated
	AuthAuthenticated
)

func (s AuthState) String() string {
	switch s {
	case AuthUnauthenticated:
		return "unauthenticated"
	case AuthAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// ItemReference 一个可抓取条目的绝对 URL，入队前一定带协议
type ItemReference string

// NewItemReference 将页面上的 href 规范化为绝对 URL。
// 协议相对地址（//host/path）补全为 https，相对路径按 base 解析。
func NewItemReference(href, base string) (ItemReference, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errors.New("empty href")
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", errors.Wrapf(err, "parse href %q", href)
	}
	if !u.IsAbs() {
		if base == "" {
			return "", errors.Errorf("relative href %q without base url", href)
		}
		b, err := url.Parse(base)
		if err != nil {
			return "", errors.Wrapf(err, "parse base url %q", base)
		}
		u = b.ResolveReference(u)
	}

	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", errors.Errorf("unsupported item url %q", href)
	}
	return ItemReference(u.String()), nil
}

func (r ItemReference) String() string {
	return string(r)
}

// EngagementSnapshot 详情页上抓到的互动数据。
// 任一选择器没有命中时对应字段为 nil，这不算抓取失败。
type EngagementSnapshot struct {
	Item      ItemReference `json:"item"`
	Likes     *string       `json:"likes,omitempty"`
	Coins     *string       `json:"coins,omitempty"`
	Favorites *string       `json:"favorites,omitempty"`
	Shares    *string       `json:"shares,omitempty"`
}

// CommentRecord 从评论接口响应中解析出的一条评论
type CommentRecord struct {
	Author  string `json:"author"`
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// WorkBudget 一次 fan-out 期间同时处理的条目上限，开始后不再变化
type WorkBudget int

// Cookie 浏览器上下文中的一条 cookie
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}

// HasAnyMarker 判断 cookies 中是否存在任一非空的登录标记
func HasAnyMarker(cookies []Cookie, markers []string) bool {
	for _, c := range cookies {
		if c.Value == "" {
			continue
		}
		for _, m := range markers {
			if c.Name == m {
				return true
			}
		}
	}
	return false
}
