package crawler

import "context"

// CookieSource 能读取当前浏览器上下文 cookies 的对象。
// 实现必须容忍其他 goroutine 同时创建或关闭页面。
type CookieSource interface {
	Cookies(ctx context.Context) ([]Cookie, error)
}

// Session 一次运行独占的浏览会话，运行结束时关闭
type Session interface {
	CookieSource
	Close() error
}

// SessionProvider 启动或连接浏览器，产出可复用的会话
type SessionProvider[S Session] interface {
	OpenSession(ctx context.Context) (S, error)
}

// Authenticator 某个站点的一种登录方式
type Authenticator[S Session] interface {
	Authenticate(ctx context.Context, s S) (AuthState, error)
}

// CommentHandler 接收拦截到的评论，可能被多个详情页 goroutine 同时调用
type CommentHandler func(item ItemReference, c CommentRecord)

// Extractor 针对单个站点 DOM 结构的搜索与详情抓取
type Extractor[S Session] interface {
	Search(ctx context.Context, s S, keyword string) ([]ItemReference, error)
	FetchItem(ctx context.Context, s S, item ItemReference, onComment CommentHandler) (*EngagementSnapshot, error)
}
