package bilibili

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/bilibili-crawler/browser"
	"github.com/xpzouying/bilibili-crawler/configs"
	"github.com/xpzouying/bilibili-crawler/cookies"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

const defaultRedirectWait = 5 * time.Second

// LoginConfig 登录方式及轮询参数
type LoginConfig struct {
	Type    string
	Phone   string
	Cookies string

	MaxAttempts  int
	Interval     time.Duration
	RedirectWait time.Duration
}

// loginTarget 登录过程需要的 cookie 读写能力
type loginTarget interface {
	crawler.CookieSource
	SetCookies(ctx context.Context, cks []crawler.Cookie) error
}

// Login 哔哩哔哩登录，支持扫码、手机号、cookie 和人工确认四种方式
type Login struct {
	cfg    LoginConfig
	poller *crawler.CookiePoller

	in    io.Reader
	out   io.Writer
	sleep func(ctx context.Context, d time.Duration) bool
}

var _ crawler.Authenticator[*browser.Session] = (*Login)(nil)

func NewLogin(cfg LoginConfig) (*Login, error) {
	switch cfg.Type {
	case configs.LoginTypeQRCode, configs.LoginTypePhone, configs.LoginTypeCookie, configs.LoginTypeManual:
	default:
		return nil, errors.Errorf("invalid login type %q, only qrcode, phone, cookie or manual are supported", cfg.Type)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = crawler.DefaultLoginMaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = crawler.DefaultLoginInterval
	}
	if cfg.RedirectWait < 0 {
		cfg.RedirectWait = defaultRedirectWait
	}

	return &Login{
		cfg: cfg,
		poller: &crawler.CookiePoller{
			Markers:     AuthMarkers,
			Match:       hasLoginMarker,
			MaxAttempts: cfg.MaxAttempts,
			Interval:    cfg.Interval,
		},
		in:    os.Stdin,
		out:   os.Stdout,
		sleep: sleepContext,
	}, nil
}

// hasLoginMarker cookies 按名字归并后检查登录标记，同名的以最后一个为准
func hasLoginMarker(cks []crawler.Cookie) bool {
	_, byName := cookies.ConvertCookies(cks)
	for _, name := range AuthMarkers {
		if byName[name] != "" {
			return true
		}
	}
	return false
}

// Authenticate 已经登录时直接返回，否则按配置的方式登录
func (l *Login) Authenticate(ctx context.Context, s *browser.Session) (crawler.AuthState, error) {
	return l.authenticate(ctx, s, s.Page)
}

func (l *Login) authenticate(ctx context.Context, target loginTarget, page *rod.Page) (crawler.AuthState, error) {
	log := logrus.WithField("login_type", l.cfg.Type)

	if state, err := l.poller.Check(ctx, target); err == nil && state == crawler.AuthAuthenticated {
		log.Info("检测到已登录，跳过登录")
		return state, nil
	} else if err != nil {
		log.WithError(err).Warn("检查登录状态失败，继续登录流程")
	}

	var (
		state crawler.AuthState
		err   error
	)
	switch l.cfg.Type {
	case configs.LoginTypeQRCode:
		state, err = l.byQRCode(ctx, target, page)
	case configs.LoginTypePhone:
		state, err = l.byPhone(ctx, target, page)
	case configs.LoginTypeCookie:
		state, err = l.byCookies(ctx, target, page)
	case configs.LoginTypeManual:
		state, err = l.byManual(ctx, target)
	default:
		return crawler.AuthUnknown, errors.Errorf("invalid login type %q", l.cfg.Type)
	}
	if err != nil {
		return state, err
	}

	log.WithField("wait", l.cfg.RedirectWait).Info("登录成功，等待页面跳转")
	l.sleep(ctx, l.cfg.RedirectWait)
	return state, nil
}

func (l *Login) byQRCode(ctx context.Context, target loginTarget, page *rod.Page) (crawler.AuthState, error) {
	if err := openLoginDialog(ctx, page); err != nil {
		logrus.WithError(err).Warn("打开登录弹窗失败，请在浏览器中手动打开")
	}
	logrus.Info("请使用哔哩哔哩 App 扫描二维码登录")
	return l.poller.Await(ctx, target)
}

func (l *Login) byPhone(ctx context.Context, target loginTarget, page *rod.Page) (crawler.AuthState, error) {
	if err := openLoginDialog(ctx, page); err != nil {
		logrus.WithError(err).Warn("打开登录弹窗失败，请在浏览器中手动打开")
	} else if err := fillPhone(ctx, page, l.cfg.Phone); err != nil {
		logrus.WithError(err).Warn("填写手机号失败，请手动填写")
	}
	logrus.Info("请在浏览器中输入短信验证码完成登录")
	return l.poller.Await(ctx, target)
}

// byCookies 把配置里的 cookie 串写入浏览器，然后只检查一次
func (l *Login) byCookies(ctx context.Context, target loginTarget, page *rod.Page) (crawler.AuthState, error) {
	cks := cookies.ParseCookieHeader(l.cfg.Cookies, CookieDomain)
	if len(cks) == 0 {
		return crawler.AuthUnauthenticated, errors.New("no cookies configured for cookie login")
	}
	if err := target.SetCookies(ctx, cks); err != nil {
		return crawler.AuthUnknown, err
	}
	if page != nil {
		if err := page.Context(ctx).Reload(); err != nil {
			logrus.WithError(err).Warn("写入 cookies 后刷新页面失败")
		}
	}

	state, err := l.poller.Check(ctx, target)
	if err != nil {
		return state, err
	}
	if state != crawler.AuthAuthenticated {
		return state, crawler.NewError(crawler.ErrLoginTimeout, "cookie login",
			errors.New("configured cookies contain no login marker"))
	}
	return state, nil
}

// byManual 阻塞等待操作员确认，确认后只检查一次
func (l *Login) byManual(ctx context.Context, target loginTarget) (crawler.AuthState, error) {
	fmt.Fprint(l.out, "请在浏览器中手动完成登录，完成后输入 [Y/y] 继续 ...\ninput: ")

	line, err := bufio.NewReader(l.in).ReadString('\n')
	if err != nil && line == "" {
		return crawler.AuthUnknown, errors.Wrap(err, "read manual confirmation")
	}
	if answer := strings.TrimSpace(line); answer != "Y" && answer != "y" {
		return crawler.AuthUnauthenticated, errors.New("manual login not confirmed, press [Y/y] after logging in")
	}

	state, err := l.poller.Check(ctx, target)
	if err != nil {
		return state, err
	}
	if state != crawler.AuthAuthenticated {
		return state, crawler.NewError(crawler.ErrLoginTimeout, "manual login",
			errors.New("no login marker after confirmation"))
	}
	return state, nil
}

func openLoginDialog(ctx context.Context, page *rod.Page) error {
	if page == nil {
		return errors.New("no page")
	}
	findCtx, cancel := context.WithTimeout(ctx, defaultFieldTimeout)
	defer cancel()

	entry, err := page.Context(findCtx).Element(loginEntrySelector)
	if err != nil {
		return errors.Wrap(err, "find login entry")
	}
	return entry.Click(proto.InputMouseButtonLeft, 1)
}

func fillPhone(ctx context.Context, page *rod.Page, phone string) error {
	if phone == "" {
		return nil
	}
	findCtx, cancel := context.WithTimeout(ctx, defaultFieldTimeout)
	defer cancel()
	p := page.Context(findCtx)

	input, err := p.Element(phoneInputSelector)
	if err != nil {
		return errors.Wrap(err, "find phone input")
	}
	if err := input.Input(phone); err != nil {
		return errors.Wrap(err, "fill phone")
	}

	btn, err := p.ElementR("button, span", sendCodeText)
	if err != nil {
		return errors.Wrap(err, "find send code button")
	}
	return btn.Click(proto.InputMouseButtonLeft, 1)
}
