package browser

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/bilibili-crawler/cookies"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

// Session 一次运行独占的浏览器上下文。
// Page 是首页标签，登录和搜索都在上面进行；详情页通过 NewPage 各自打开。
type Session struct {
	Browser   *rod.Browser
	Page      *rod.Page
	UserAgent string

	opts     Options
	newPage  func() (*rod.Page, error)
	closeFn  func() error
	once     sync.Once
	closeErr error

	// stopPatch 非空表示浏览器级别的补丁已经开启，新标签页在启动前就会被处理
	stopPatch func()
}

var _ crawler.Session = (*Session)(nil)

// NewPage 打开一个新标签，反检测补丁和 UA、视口设置都在任何导航之前完成
func (s *Session) NewPage() (page *rod.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("new page panic: %v", r)
		}
	}()

	page, err = s.newPage()
	if err != nil {
		return nil, errors.Wrap(err, "new page")
	}
	ConfigurePage(page, s.pageSettings())
	return page, nil
}

func (s *Session) pageSettings() PageSettings {
	return PageSettings{
		UserAgent:      s.UserAgent,
		ViewportWidth:  s.opts.ViewportWidth,
		ViewportHeight: s.opts.ViewportHeight,
	}
}

// Adopt 处理站点自己打开的标签页。浏览器级别补丁开启时这些页面已经处理过，
// 否则只能在页面打开之后补上 UA 和视口，反检测脚本赶不上当前文档。
func (s *Session) Adopt(page *rod.Page) {
	if s.stopPatch != nil {
		return
	}
	logrus.Debug("browser level patch is off, configuring opened tab late")
	ConfigurePage(page, s.pageSettings())
}

// enablePatch 开启浏览器级别补丁，失败时退回到逐页设置
func (s *Session) enablePatch() {
	stop, err := PatchNewTargets(s.Browser, s.pageSettings())
	if err != nil {
		logrus.WithError(err).Warn("无法在浏览器级别注入反检测脚本，站点打开的标签页只做事后设置")
		return
	}
	s.stopPatch = stop
}

// Cookies 读取整个浏览器上下文的 cookies，可以和页面的创建、关闭并发进行
func (s *Session) Cookies(ctx context.Context) ([]crawler.Cookie, error) {
	cks, err := s.Browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, errors.Wrap(err, "get browser cookies")
	}
	return FromNetworkCookies(cks), nil
}

// SetCookies 写入 cookies，path 固定为 /
func (s *Session) SetCookies(ctx context.Context, cks []crawler.Cookie) error {
	return errors.Wrap(s.Browser.Context(ctx).SetCookies(ToCookieParams(cks)), "set browser cookies")
}

// Close 关闭浏览器。临时模式下先把 cookies 写回文件，下次启动时复用登录态。
// 可以重复调用，只有第一次生效。
func (s *Session) Close() error {
	s.once.Do(func() {
		if s.stopPatch != nil {
			s.stopPatch()
		}
		if s.opts.Profile == ProfileEphemeral && s.opts.CookiesPath != "" && s.Browser != nil {
			if err := s.saveCookies(); err != nil {
				logrus.WithError(err).WithField("cookies_path", s.opts.CookiesPath).Warn("保存 cookies 失败")
			}
		}
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
		logrus.Info("浏览器已关闭")
	})
	return s.closeErr
}

func (s *Session) saveCookies() error {
	cks, err := s.Browser.GetCookies()
	if err != nil {
		return err
	}
	data, err := json.Marshal(cks)
	if err != nil {
		return err
	}
	return cookies.NewLoadCookie(s.opts.CookiesPath).SaveCookies(data)
}

// FromNetworkCookies 协议层 cookie 转成领域类型
func FromNetworkCookies(cks []*proto.NetworkCookie) []crawler.Cookie {
	out := make([]crawler.Cookie, 0, len(cks))
	for _, c := range cks {
		if c == nil {
			continue
		}
		out = append(out, crawler.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	return out
}

// ToCookieParams 领域类型转成 SetCookies 需要的参数
func ToCookieParams(cks []crawler.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cks))
	for _, c := range cks {
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   "/",
		})
	}
	return params
}

// restoreCookies 把 cookies 文件里的内容写回浏览器，文件不存在时静默跳过
func restoreCookies(b *rod.Browser, path string) {
	if path == "" {
		return
	}
	data, err := cookies.NewLoadCookie(path).LoadCookies()
	if err != nil {
		logrus.WithField("cookies_path", path).Debugf("no cookies to restore: %v", err)
		return
	}

	var cks []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cks); err != nil {
		logrus.WithError(err).WithField("cookies_path", path).Warn("cookies 文件格式不正确")
		return
	}
	if err := b.SetCookies(proto.CookiesToParams(cks)); err != nil {
		logrus.WithError(err).Warn("恢复 cookies 失败")
		return
	}
	logrus.WithFields(logrus.Fields{"cookies_path": path, "count": len(cks)}).Info("已从文件恢复 cookies")
}
