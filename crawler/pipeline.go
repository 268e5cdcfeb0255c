package crawler

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Pipeline 会话启动 → 登录（可选）→ 搜索 → 并发抓取详情
type Pipeline[S Session] struct {
	Sessions  SessionProvider[S]
	Auth      Authenticator[S] // nil 表示跳过登录
	Extractor Extractor[S]
	Budget    WorkBudget

	// Limiter 在拿到并发名额之后、打开详情页之前限速，nil 表示不限速
	Limiter *rate.Limiter

	// OnComment 评论旁路输出，nil 时只计数
	OnComment CommentHandler
}

// Result 一次运行的汇总
type Result struct {
	RunID     string
	Keyword   string
	Items     []ItemReference
	Snapshots []EngagementSnapshot
	Failed    int
	Comments  int64
}

// Run 执行一次完整的抓取。
// 会话启动、登录、搜索阶段的错误直接返回，没有额外重试；
// 搜索结果为空时返回 ErrEmptySearchResult，不会进入 fan-out。
func (p *Pipeline[S]) Run(ctx context.Context, keyword string) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Keyword: keyword}
	log := logrus.WithFields(logrus.Fields{"run_id": res.RunID, "keyword": keyword})

	session, err := p.Sessions.OpenSession(ctx)
	if err != nil {
		if errors.Is(err, ErrLaunch) {
			return res, err
		}
		return res, NewError(ErrLaunch, "open session", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("关闭会话失败")
		}
	}()
	log.Info("会话已启动")

	if p.Auth != nil {
		state, err := p.Auth.Authenticate(ctx, session)
		if err != nil {
			return res, err
		}
		log.WithField("auth_state", state).Info("登录检查完成")
	}

	items, err := p.Extractor.Search(ctx, session, keyword)
	if err != nil {
		return res, errors.Wrap(err, "search")
	}
	res.Items = items
	log.WithField("count", len(items)).Info("搜索结果条目数")
	if len(items) == 0 {
		return res, NewError(ErrEmptySearchResult, "search "+keyword, nil)
	}

	var comments atomic.Int64
	onComment := func(item ItemReference, c CommentRecord) {
		comments.Add(1)
		if p.OnComment != nil {
			p.OnComment(item, c)
		}
	}
	fetch := func(ctx context.Context, item ItemReference) (*EngagementSnapshot, error) {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, "navigation pacing")
			}
		}
		return p.Extractor.FetchItem(ctx, session, item, onComment)
	}

	res.Snapshots = FetchAll(ctx, items, p.Budget, fetch)
	res.Failed = len(items) - len(res.Snapshots)
	res.Comments = comments.Load()

	log.WithFields(logrus.Fields{
		"items":     len(res.Items),
		"snapshots": len(res.Snapshots),
		"failed":    res.Failed,
		"comments":  res.Comments,
	}).Info("抓取完成")
	return res, nil
}
