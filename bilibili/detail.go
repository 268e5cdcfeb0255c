package bilibili

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/bilibili-crawler/browser"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

// detailTab 详情页抓取用到的页面操作
type detailTab interface {
	// InterceptComments 挂载评论监听，返回的 stop 返回后不会再有回调
	InterceptComments(item crawler.ItemReference, onComment crawler.CommentHandler) (stop func())
	// BlockResources 没有需要拦截的类型时返回 nil
	BlockResources(names []string) (stop func())
	Navigate(ctx context.Context, url string) error
	ReadField(ctx context.Context, xpath string) (string, error)
	Wheel(ctx context.Context) Wheel
	Close() error
}

// FetchItem 在独立的标签页里打开视频，读取互动数据并滚动触发评论加载，最后关闭标签页。
// 四个互动字段各自可选，找不到不算失败；页面打不开才算失败。
func (e *Extractor) FetchItem(ctx context.Context, s *browser.Session, item crawler.ItemReference, onComment crawler.CommentHandler) (*crawler.EngagementSnapshot, error) {
	page, err := s.NewPage()
	if err != nil {
		return nil, err
	}
	return e.scrapeDetail(ctx, &rodDetailTab{page: page, timeout: e.cfg.NavigationTimeout}, item, onComment)
}

func (e *Extractor) scrapeDetail(ctx context.Context, tab detailTab, item crawler.ItemReference, onComment crawler.CommentHandler) (*crawler.EngagementSnapshot, error) {
	log := logrus.WithField("item", item)
	defer func() {
		if err := tab.Close(); err != nil {
			log.WithError(err).Debug("关闭详情页失败")
		}
	}()

	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 评论拦截依赖网络事件，和请求拦截同时开启时会互相干扰，只能二选一
	if e.cfg.EnableComments && onComment != nil {
		stop := tab.InterceptComments(item, onComment)
		defer stop()
	} else if stop := tab.BlockResources(e.cfg.BlockedResources); stop != nil {
		defer stop()
	}

	if err := tab.Navigate(pageCtx, item.String()); err != nil {
		return nil, errors.Wrap(err, "navigate")
	}

	snap := &crawler.EngagementSnapshot{
		Item:      item,
		Likes:     e.readField(pageCtx, tab, likesXPath),
		Coins:     e.readField(pageCtx, tab, coinsXPath),
		Favorites: e.readField(pageCtx, tab, favoritesXPath),
		Shares:    e.readField(pageCtx, tab, sharesXPath),
	}
	log.WithFields(logrus.Fields{
		"likes":     crawler.MetricText(snap.Likes),
		"coins":     crawler.MetricText(snap.Coins),
		"favorites": crawler.MetricText(snap.Favorites),
		"shares":    crawler.MetricText(snap.Shares),
	}).Info("互动数据")

	e.scroller.Simulate(pageCtx, tab.Wheel(pageCtx), e.cfg.ScrollBursts)
	return snap, nil
}

// readField 在超时内等待元素出现并读取文本，找不到返回 nil
func (e *Extractor) readField(ctx context.Context, tab detailTab, xpath string) *string {
	fieldCtx, cancel := context.WithTimeout(ctx, e.cfg.FieldTimeout)
	defer cancel()

	text, err := tab.ReadField(fieldCtx, xpath)
	if err != nil {
		logrus.WithField("xpath", xpath).Debugf("field not found: %v", err)
		return nil
	}
	text = strings.TrimSpace(text)
	return &text
}

type rodDetailTab struct {
	page    *rod.Page
	timeout time.Duration
}

func (t *rodDetailTab) InterceptComments(item crawler.ItemReference, onComment crawler.CommentHandler) func() {
	return AttachInterceptor(t.page, item, onComment).Stop
}

func (t *rodDetailTab) BlockResources(names []string) func() {
	router := browser.BlockResources(t.page, names)
	if router == nil {
		return nil
	}
	return func() { _ = router.Stop() }
}

func (t *rodDetailTab) Navigate(ctx context.Context, url string) error {
	return browser.Navigate(ctx, t.page, url, t.timeout)
}

func (t *rodDetailTab) ReadField(ctx context.Context, xpath string) (string, error) {
	el, err := t.page.Context(ctx).ElementX(xpath)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (t *rodDetailTab) Wheel(ctx context.Context) Wheel {
	return t.page.Context(ctx).Mouse
}

func (t *rodDetailTab) Close() error {
	return t.page.Close()
}
