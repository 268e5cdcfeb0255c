package crawler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLoginMaxAttempts = 600
	DefaultLoginInterval    = time.Second
)

var errNotAuthenticated = errors.New("login markers not present yet")

// CookiePoller 以固定间隔轮询 cookies 中的登录标记。
// 登录完成时间取决于扫码或人工操作，所以不做指数退避。
type CookiePoller struct {
	Markers     []string
	MaxAttempts int
	Interval    time.Duration

	// Match 判断 cookies 是否表示已登录，为 nil 时只要有任一非空的 Markers 就算
	Match func(cookies []Cookie) bool

	// NewTimer 为 nil 时使用真实计时器，测试中替换为假时钟
	NewTimer func() backoff.Timer
}

// Check 读取一次 cookies，判断当前登录状态
func (p *CookiePoller) Check(ctx context.Context, src CookieSource) (AuthState, error) {
	cookies, err := src.Cookies(ctx)
	if err != nil {
		return AuthUnknown, errors.Wrap(err, "read cookies")
	}
	if p.matches(cookies) {
		return AuthAuthenticated, nil
	}
	return AuthUnauthenticated, nil
}

func (p *CookiePoller) matches(cookies []Cookie) bool {
	if p.Match != nil {
		return p.Match(cookies)
	}
	return HasAnyMarker(cookies, p.Markers)
}

// Await 轮询直到出现任一登录标记，或者 MaxAttempts 次都未成功。
// 次数用尽返回 ErrLoginTimeout，调用方不再重试。
func (p *CookiePoller) Await(ctx context.Context, src CookieSource) (AuthState, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultLoginInterval
	}

	log := logrus.WithFields(logrus.Fields{
		"max_attempts": maxAttempts,
		"interval":     interval,
	})
	log.Info("登录状态: polling")

	attempts := 0
	operation := func() error {
		attempts++
		state, err := p.Check(ctx, src)
		if err != nil {
			log.WithError(err).WithField("attempt", attempts).Warn("读取 cookies 失败，继续轮询")
			return err
		}
		if state == AuthAuthenticated {
			return nil
		}
		return errNotAuthenticated
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxAttempts-1)),
		ctx,
	)
	var timer backoff.Timer
	if p.NewTimer != nil {
		timer = p.NewTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, b, nil, timer)
	if err == nil {
		log.WithField("attempts", attempts).Info("登录状态: authenticated")
		return AuthAuthenticated, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return AuthUnknown, errors.Wrap(ctxErr, "await authentication")
	}

	log.WithField("attempts", attempts).Error("登录状态: expired")
	return AuthUnauthenticated, NewError(ErrLoginTimeout, "await authentication",
		errors.Errorf("no login marker after %d attempts", attempts))
}
