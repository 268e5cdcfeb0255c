package bilibili

import (
	"encoding/base64"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

const repliesBody = `{
	"code": 0,
	"data": {
		"cursor": {"is_end": false},
		"replies": [
			{"rpid": 231450198816, "member": {"uname": "老番茄"}, "content": {"message": "前排"}},
			{"rpid": 231450198817, "member": {"uname": "路人"}, "content": {"message": "第二\n行"}}
		]
	}
}`

func TestDecodeComments(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []crawler.CommentRecord
		wantErr bool
	}{
		{
			name: "正常评论",
			body: repliesBody,
			want: []crawler.CommentRecord{
				{Author: "老番茄", ID: 231450198816, Message: "前排"},
				{Author: "路人", ID: 231450198817, Message: "第二\n行"},
			},
		},
		{name: "没有 data", body: `{"code": -404, "message": "啥都木有"}`},
		{name: "data 为 null", body: `{"code": 0, "data": null}`},
		{name: "data 为空数组", body: `{"code": 0, "data": []}`},
		{name: "data 为空对象", body: `{"code": 0, "data": {}}`},
		{name: "replies 为 null", body: `{"code": 0, "data": {"replies": null}}`},
		{name: "replies 为空", body: `{"code": 0, "data": {"replies": []}}`},
		{name: "不是 JSON", body: `<html></html>`, wantErr: true},
		{name: "data 结构不对", body: `{"code": 0, "data": {"replies": "oops"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeComments([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterceptorHandleBody(t *testing.T) {
	var got []crawler.CommentRecord
	var items []crawler.ItemReference
	i := newInterceptor("https://www.bilibili.com/video/BV1", func(item crawler.ItemReference, c crawler.CommentRecord) {
		items = append(items, item)
		got = append(got, c)
	})

	i.handleBody("https://api.bilibili.com/x/v2/reply/wbi/main?oid=1", repliesBody, false)
	encoded := base64.StdEncoding.EncodeToString([]byte(repliesBody))
	i.handleBody("https://api.bilibili.com/x/v2/reply/wbi/main?oid=1&next=2", encoded, true)

	assert.Len(t, got, 4)
	assert.Equal(t, int64(2), i.Responses())
	assert.Equal(t, int64(4), i.Records())
	for _, item := range items {
		assert.Equal(t, crawler.ItemReference("https://www.bilibili.com/video/BV1"), item)
	}
}

func TestInterceptorDecodeFailureIsContained(t *testing.T) {
	calls := 0
	i := newInterceptor("https://www.bilibili.com/video/BV1", func(crawler.ItemReference, crawler.CommentRecord) { calls++ })

	assert.NotPanics(t, func() {
		i.handleBody("u", "not json", false)
		i.handleBody("u", "%%%", true)
		i.handleBody("u", `{"data": {"replies": []}}`, false)
	})
	assert.Equal(t, 0, calls)
	assert.Equal(t, int64(3), i.Responses())
	assert.Equal(t, int64(0), i.Records())
}

func TestInterceptorPendingRequests(t *testing.T) {
	i := newInterceptor("item", nil)

	i.track("1", "https://api.bilibili.com/x/v2/reply/wbi/main")
	url, ok := i.take("1")
	assert.True(t, ok)
	assert.Contains(t, url, CommentEndpoint)

	_, ok = i.take("1")
	assert.False(t, ok, "同一个请求只处理一次")
}

func TestInterceptorStopWaitsForRunningCallback(t *testing.T) {
	var delivered atomic.Int64
	i := newInterceptor("https://www.bilibili.com/video/BV1", func(crawler.ItemReference, crawler.CommentRecord) {
		delivered.Add(1)
	})

	canceled := make(chan struct{})
	// 取消的时候还有一个响应正在处理
	i.run(func() {
		<-canceled
		i.handleBody("https://api.bilibili.com/x/v2/reply/wbi/main?oid=1", repliesBody, false)
	}, func() { close(canceled) })

	i.Stop()
	assert.Equal(t, int64(2), delivered.Load(), "Stop 返回前回调必须已经结束")
	assert.Equal(t, int64(2), i.Records())

	assert.NotPanics(t, i.Stop)
	assert.NotPanics(t, newInterceptor("item", nil).Stop)
}
