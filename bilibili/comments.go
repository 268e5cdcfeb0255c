package bilibili

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

// IsCommentEndpoint 判断响应是否来自分页评论接口
func IsCommentEndpoint(url string) bool {
	return strings.Contains(url, CommentEndpoint)
}

type commentResponse struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

type commentPage struct {
	Replies []struct {
		RPID   int64 `json:"rpid"`
		Member struct {
			Uname string `json:"uname"`
		} `json:"member"`
		Content struct {
			Message string `json:"message"`
		} `json:"content"`
	} `json:"replies"`
}

// DecodeComments 解析评论接口的响应体。
// data 缺失、为空或者 replies 为空都是正常情况，返回 nil, nil。
func DecodeComments(body []byte) ([]crawler.CommentRecord, error) {
	var resp commentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decode comment response")
	}

	data := bytes.TrimSpace(resp.Data)
	if isEmptyJSON(data) {
		logrus.WithField("code", resp.Code).Info("评论接口没有返回数据")
		return nil, nil
	}

	var page commentPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, errors.Wrap(err, "decode comment data")
	}
	if len(page.Replies) == 0 {
		logrus.Info("评论为空")
		return nil, nil
	}

	records := make([]crawler.CommentRecord, 0, len(page.Replies))
	for _, r := range page.Replies {
		records = append(records, crawler.CommentRecord{
			Author:  r.Member.Uname,
			ID:      r.RPID,
			Message: r.Content.Message,
		})
	}
	return records, nil
}

func isEmptyJSON(data []byte) bool {
	switch string(data) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}

// Interceptor 监听一个详情页的网络响应，从评论接口的响应里取出评论。
// 同一页面内按响应到达顺序处理。
type Interceptor struct {
	item      crawler.ItemReference
	onComment crawler.CommentHandler

	mu      sync.Mutex
	pending map[proto.NetworkRequestID]string

	responses atomic.Int64
	records   atomic.Int64

	cancel   func()
	done     chan struct{}
	stopOnce sync.Once
}

func newInterceptor(item crawler.ItemReference, onComment crawler.CommentHandler) *Interceptor {
	return &Interceptor{
		item:      item,
		onComment: onComment,
		pending:   make(map[proto.NetworkRequestID]string),
	}
}

// AttachInterceptor 在页面上挂载监听，必须在导航之前调用。
// 调用方在关闭页面前调用 Stop，Stop 返回后不会再有回调。
func AttachInterceptor(page *rod.Page, item crawler.ItemReference, onComment crawler.CommentHandler) *Interceptor {
	i := newInterceptor(item, onComment)
	p, cancel := page.WithCancel()

	wait := p.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Response != nil && IsCommentEndpoint(e.Response.URL) {
				i.track(e.RequestID, e.Response.URL)
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			url, ok := i.take(e.RequestID)
			if !ok {
				return
			}
			body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(p)
			if err != nil {
				i.fail(url, errors.Wrap(err, "get response body"))
				return
			}
			i.handleBody(url, body.Body, body.Base64Encoded)
		},
		func(e *proto.NetworkLoadingFailed) {
			i.take(e.RequestID)
		},
	)
	i.run(wait, cancel)

	return i
}

// run 在后台分发事件，cancel 结束分发
func (i *Interceptor) run(wait func(), cancel func()) {
	i.cancel = cancel
	i.done = make(chan struct{})
	go func() {
		defer close(i.done)
		wait()
	}()
}

// Stop 停止监听，并等待正在执行的回调结束。可以重复调用。
func (i *Interceptor) Stop() {
	i.stopOnce.Do(func() {
		if i.cancel == nil {
			return
		}
		i.cancel()
		<-i.done
	})
}

func (i *Interceptor) track(id proto.NetworkRequestID, url string) {
	i.mu.Lock()
	i.pending[id] = url
	i.mu.Unlock()
}

func (i *Interceptor) take(id proto.NetworkRequestID) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	url, ok := i.pending[id]
	if ok {
		delete(i.pending, id)
	}
	return url, ok
}

// handleBody 解析一个评论响应并逐条回调，失败只记日志
func (i *Interceptor) handleBody(url, body string, base64Encoded bool) {
	i.responses.Add(1)

	raw := []byte(body)
	if base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			i.fail(url, errors.Wrap(err, "decode base64 body"))
			return
		}
		raw = decoded
	}

	records, err := DecodeComments(raw)
	if err != nil {
		i.fail(url, err)
		return
	}
	for _, c := range records {
		i.records.Add(1)
		if i.onComment != nil {
			i.onComment(i.item, c)
		}
	}
}

func (i *Interceptor) fail(url string, err error) {
	logrus.WithError(crawler.NewError(crawler.ErrCommentDecode, "intercept comments", err)).
		WithFields(logrus.Fields{"item": i.item, "url": url}).
		Warn("评论响应解析失败")
}

// Responses 已处理的评论接口响应数
func (i *Interceptor) Responses() int64 { return i.responses.Load() }

// Records 已回调的评论条数
func (i *Interceptor) Records() int64 { return i.records.Load() }
