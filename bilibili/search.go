package bilibili

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/bilibili-crawler/browser"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

const (
	defaultFieldTimeout      = 5 * time.Second
	defaultNavigationTimeout = 30 * time.Second

	// requestIdleWindow 连续这么久没有请求视为网络空闲
	requestIdleWindow = 500 * time.Millisecond
)

// ExtractorConfig 搜索和详情抓取的参数
type ExtractorConfig struct {
	ScrollBursts      int
	FieldTimeout      time.Duration
	NavigationTimeout time.Duration
	// EnableComments 是否拦截评论接口
	EnableComments bool
	// BlockedResources 详情页上拦截的资源类型，开启评论拦截时不生效
	BlockedResources []string
}

// Extractor 哔哩哔哩的搜索与视频详情抓取
type Extractor struct {
	cfg      ExtractorConfig
	scroller *Scroller
}

var _ crawler.Extractor[*browser.Session] = (*Extractor)(nil)

func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.FieldTimeout <= 0 {
		cfg.FieldTimeout = defaultFieldTimeout
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ScrollBursts < 0 {
		cfg.ScrollBursts = DefaultScrollBursts
	}
	return &Extractor{cfg: cfg, scroller: NewScroller()}
}

// Search 在首页顶栏输入关键词并点击搜索。
// 搜索结果会在新标签页中打开，结果列表异步加载，所以要等网络空闲再解析。
func (e *Extractor) Search(ctx context.Context, s *browser.Session, keyword string) ([]crawler.ItemReference, error) {
	log := logrus.WithField("keyword", keyword)

	findCtx, cancel := context.WithTimeout(ctx, e.cfg.NavigationTimeout)
	defer cancel()
	home := s.Page.Context(findCtx)

	input, err := home.ElementX(searchInputXPath)
	if err != nil {
		return nil, errors.Wrap(err, "find search input")
	}
	if err := input.Input(keyword); err != nil {
		return nil, errors.Wrap(err, "fill search input")
	}

	button, err := home.ElementX(searchButtonXPath)
	if err != nil {
		return nil, errors.Wrap(err, "find search button")
	}

	waitOpen := home.WaitOpen()
	if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, errors.Wrap(err, "click search button")
	}
	resultPage, err := waitOpen()
	if err != nil {
		return nil, errors.Wrap(err, "wait for result tab")
	}
	defer func() {
		if err := resultPage.Close(); err != nil {
			log.WithError(err).Debug("关闭搜索结果页失败")
		}
	}()

	html, base, err := e.readResults(ctx, rodResultTab{page: resultPage, session: s})
	if err != nil {
		return nil, err
	}

	items, err := ExtractItemLinks(html, base)
	if err != nil {
		return nil, err
	}
	log.WithField("href_count", len(items)).Info("搜索完成")
	return items, nil
}

// resultTab 搜索结果页上等待和读取需要的操作
type resultTab interface {
	// StartIdleWait 立即开始统计请求，返回的函数阻塞到连续 window 时间没有请求
	StartIdleWait(ctx context.Context, window time.Duration) func()
	// Configure 补上页面设置，站点自己打开的标签页不经过 NewPage
	Configure()
	WaitLoad(ctx context.Context) error
	WaitElement(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) string
}

// readResults 等结果页加载完、网络空闲并且列表中出现链接后读取 HTML。
// 请求统计在 load 之前就开始，load 前发出的列表请求也要等它结束。
func (e *Extractor) readResults(ctx context.Context, tab resultTab) (html, base string, err error) {
	loadCtx, cancel := context.WithTimeout(ctx, e.cfg.NavigationTimeout)
	defer cancel()

	idle := tab.StartIdleWait(loadCtx, requestIdleWindow)
	tab.Configure()
	if err := tab.WaitLoad(loadCtx); err != nil {
		return "", "", errors.Wrap(err, "wait result page load")
	}
	idle()
	if loadCtx.Err() != nil {
		logrus.Warn("等待网络空闲超时，使用当前页面内容")
	}

	listCtx, cancelList := context.WithTimeout(ctx, e.cfg.FieldTimeout)
	defer cancelList()
	if err := tab.WaitElement(listCtx, resultLinkSelector); err != nil {
		logrus.WithError(err).Warn("结果列表中没有出现链接，使用当前页面内容")
	}

	html, err = tab.HTML(ctx)
	if err != nil {
		return "", "", errors.Wrap(err, "read result page html")
	}

	base = SearchBaseURL
	if u := tab.URL(ctx); u != "" {
		base = u
	}
	return html, base, nil
}

type rodResultTab struct {
	page    *rod.Page
	session *browser.Session
}

func (t rodResultTab) StartIdleWait(ctx context.Context, window time.Duration) func() {
	return t.page.Context(ctx).WaitRequestIdle(window, nil, nil, nil)
}

func (t rodResultTab) Configure() {
	t.session.Adopt(t.page)
}

func (t rodResultTab) WaitLoad(ctx context.Context) error {
	return t.page.Context(ctx).WaitLoad()
}

func (t rodResultTab) WaitElement(ctx context.Context, selector string) error {
	_, err := t.page.Context(ctx).Element(selector)
	return err
}

func (t rodResultTab) HTML(ctx context.Context) (string, error) {
	return t.page.Context(ctx).HTML()
}

func (t rodResultTab) URL(ctx context.Context) string {
	info, err := t.page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// ExtractItemLinks 从搜索结果页 HTML 中取出所有视频链接。
// 顺序与 DOM 一致，不去重；没有 href 或者不是视频的链接直接丢弃。
func ExtractItemLinks(html, base string) ([]crawler.ItemReference, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "parse result page")
	}

	var items []crawler.ItemReference
	doc.Find(resultLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		ref, err := crawler.NewItemReference(href, base)
		if err != nil {
			logrus.WithError(err).WithField("href", href).Debug("忽略无法解析的链接")
			return
		}
		if !isVideoURL(ref) {
			return
		}
		items = append(items, ref)
	})
	return items, nil
}

// isVideoURL 只看规范化之后的路径，查询参数里出现 /video/ 不算
func isVideoURL(ref crawler.ItemReference) bool {
	u, err := url.Parse(ref.String())
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, videoPathMarker)
}
