package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/stealth"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

// ProfileMode 浏览器用户目录的持久化方式
type ProfileMode int

const (
	// ProfileEphemeral 临时上下文，登录态只通过 cookies 文件保留
	ProfileEphemeral ProfileMode = iota
	// ProfilePersistent 磁盘上的用户目录，按平台区分，跨运行保留 cookies 和 local storage
	ProfilePersistent
)

func (m ProfileMode) String() string {
	if m == ProfilePersistent {
		return "persistent"
	}
	return "ephemeral"
}

const defaultNavigationTimeout = 30 * time.Second

// Options 启动一个会话需要的全部参数
type Options struct {
	Headless    bool
	BinPath     string
	Proxy       string
	Profile     ProfileMode
	UserDataDir string
	CookiesPath string

	// UserAgent 为空时随机选择
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int

	// IndexURL 启动后首先打开的页面，导航失败视为启动失败
	IndexURL          string
	NavigationTimeout time.Duration
}

// useLauncher 持久化目录和代理只有自己启动 Chrome 时才能设置
func (o Options) useLauncher() bool {
	return o.Profile == ProfilePersistent || o.Proxy != ""
}

// Provider 按固定参数启动会话
type Provider struct {
	Options Options
}

func (p *Provider) OpenSession(ctx context.Context) (*Session, error) {
	return OpenSession(ctx, p.Options)
}

// OpenSession 启动浏览器、打开首页标签并导航到 IndexURL。
// 任何一步失败都返回 ErrLaunch，已经启动的浏览器会被关闭，这一层不重试。
func OpenSession(ctx context.Context, opts Options) (sess *Session, err error) {
	ua := ResolveUserAgent(opts.UserAgent)
	opts.UserAgent = ua

	defer func() {
		if r := recover(); r != nil {
			err = crawler.NewError(crawler.ErrLaunch, "open session", errors.Errorf("panic: %v", r))
		}
		if err != nil && sess != nil {
			_ = sess.Close()
			sess = nil
		}
	}()

	log := logrus.WithFields(logrus.Fields{
		"profile":  opts.Profile,
		"headless": opts.Headless,
		"proxy":    opts.Proxy != "",
	})

	if opts.useLauncher() {
		sess, err = launchSession(opts)
	} else {
		sess = headlessSession(opts)
	}
	if err != nil {
		return nil, crawler.NewError(crawler.ErrLaunch, "launch browser", err)
	}
	sess.UserAgent = ua

	page, err := sess.NewPage()
	if err != nil {
		return sess, crawler.NewError(crawler.ErrLaunch, "open index page", err)
	}
	sess.Page = page
	if sess.Browser == nil {
		sess.Browser = page.Browser()
	}
	sess.enablePatch()

	if opts.IndexURL != "" {
		if err := Navigate(ctx, page, opts.IndexURL, opts.NavigationTimeout); err != nil {
			return sess, crawler.NewError(crawler.ErrLaunch, "navigate "+opts.IndexURL, err)
		}
	}

	log.WithField("user_agent", ua).Info("会话已就绪")
	return sess, nil
}

// Navigate 在超时内完成导航和 load 事件
func Navigate(ctx context.Context, page *rod.Page, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

// headlessSession 临时模式且不需要代理时，沿用 headless_browser 的启动方式
func headlessSession(opts Options) *Session {
	hb := NewBrowser(opts.Headless,
		WithBinPath(opts.BinPath),
		WithCookiesPath(opts.CookiesPath),
		WithUserAgent(opts.UserAgent),
	)
	return &Session{
		opts: opts,
		newPage: func() (*rod.Page, error) {
			return hb.NewPage(), nil
		},
		closeFn: func() error {
			hb.Close()
			return nil
		},
	}
}

// launchSession 自己启动 Chrome，支持持久化用户目录和代理
func launchSession(opts Options) (*Session, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.BinPath != "" {
		l = l.Bin(opts.BinPath)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}

	persistent := opts.Profile == ProfilePersistent
	if persistent {
		if opts.UserDataDir == "" {
			return nil, errors.New("persistent profile requires a user data dir")
		}
		if err := os.MkdirAll(opts.UserDataDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create user data dir")
		}
		l = l.UserDataDir(opts.UserDataDir)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", opts.ViewportWidth, opts.ViewportHeight))
	}
	if opts.UserAgent != "" {
		l.Set(flags.Flag("user-agent"), opts.UserAgent)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "launch chrome")
	}
	logrus.WithField("control_url", controlURL).Debug("browser launched")

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, errors.Wrap(err, "connect to chrome")
	}

	if !persistent {
		restoreCookies(b, opts.CookiesPath)
	}

	return &Session{
		Browser: b,
		opts:    opts,
		newPage: func() (*rod.Page, error) {
			return stealth.Page(b)
		},
		closeFn: func() error {
			err := b.Close()
			l.Kill()
			// 持久化目录要保留，只清理临时目录
			if !persistent {
				l.Cleanup()
			}
			return err
		},
	}, nil
}
