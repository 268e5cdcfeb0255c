package browser

import (
	"runtime"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/bilibili-crawler/cookies"
	"github.com/xpzouying/headless_browser"
)

type browserConfig struct {
	binPath    string
	cookiePath string
	userAgent  string
}

type Option func(*browserConfig)

func WithBinPath(binPath string) Option {
	return func(c *browserConfig) {
		c.binPath = binPath
	}
}

// WithUserAgent 浏览器启动参数里的 UA，和会话协商的 UA 保持一致
func WithUserAgent(ua string) Option {
	return func(c *browserConfig) {
		c.userAgent = ua
	}
}

// WithCookiesPath 指定新浏览器实例启动时要使用的 cookies 文件路径。
func WithCookiesPath(path string) Option {
	return func(c *browserConfig) {
		c.cookiePath = path
	}
}

// NewBrowser 创建一个内存中的临时浏览器，cookies 文件存在时直接带上
func NewBrowser(headless bool, options ...Option) *headless_browser.Browser {
	return headless_browser.New(headlessOptions(headless, options...)...)
}

func headlessOptions(headless bool, options ...Option) []headless_browser.Option {
	cfg := &browserConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	opts := []headless_browser.Option{
		headless_browser.WithHeadless(headless),
	}
	if cfg.binPath != "" {
		opts = append(opts, headless_browser.WithChromeBinPath(cfg.binPath))
	}
	if cfg.userAgent != "" {
		opts = append(opts, headless_browser.WithUserAgent(cfg.userAgent))
	}

	cookiePath := cfg.cookiePath
	if cookiePath == "" {
		cookiePath = cookies.GetCookiesFilePath()
	}
	if data, err := cookies.NewLoadCookie(cookiePath).LoadCookies(); err == nil {
		opts = append(opts, headless_browser.WithCookies(string(data)))
		logrus.WithField("cookies_path", cookiePath).Debug("loaded cookies from file successfully")
	} else {
		logrus.WithField("cookies_path", cookiePath).Warnf("failed to load cookies: %v", err)
	}
	return opts
}

// PageSettings 每个新页面在导航前要应用的设置
type PageSettings struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
}

// ConfigurePage 在任何导航之前统一 UA 和视口，Windows 下额外修正 navigator.platform
func ConfigurePage(page *rod.Page, s PageSettings) {
	if s.UserAgent != "" {
		override := &proto.NetworkSetUserAgentOverride{UserAgent: s.UserAgent}
		if runtime.GOOS == "windows" {
			override.Platform = "Windows"
		}
		// 页面已经关闭时会失败，不影响主流程
		if err := page.SetUserAgent(override); err != nil {
			logrus.WithError(err).Warn("failed to override user agent")
		}
	}

	if s.ViewportWidth > 0 && s.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             s.ViewportWidth,
			Height:            s.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			logrus.WithError(err).Warn("failed to set viewport")
		}
	}

	// stealth 默认把 UA 伪装成 Mac Chrome，Windows 下 navigator 属性要跟 UA 保持一致
	if runtime.GOOS == "windows" && s.UserAgent != "" {
		_, err := page.EvalOnNewDocument(`
			Object.defineProperty(navigator, 'platform', {
				get: () => 'Win32'
			});
			Object.defineProperty(navigator, 'userAgent', {
				get: () => '` + s.UserAgent + `'
			});
			Object.defineProperty(navigator, 'vendor', {
				get: () => 'Google Inc.'
			});
		`)
		if err != nil {
			logrus.Warnf("failed to set user agent script: %v", err)
		}
	}
}
