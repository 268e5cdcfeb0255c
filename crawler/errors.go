package crawler

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrLaunch 浏览器或会话无法启动，整次运行终止
	ErrLaunch = errors.New("launch failed")
	// ErrLoginTimeout 登录轮询次数用尽
	ErrLoginTimeout = errors.New("login timeout")
	// ErrEmptySearchResult 搜索没有任何候选条目，fan-out 之前终止
	ErrEmptySearchResult = errors.New("empty search result")
	// ErrItemFetch 单个条目抓取失败，只影响该条目
	ErrItemFetch = errors.New("item fetch failed")
	// ErrCommentDecode 单个评论响应解析失败，只记录日志
	ErrCommentDecode = errors.New("comment decode failed")
)

// Error 带有阶段分类的错误，errors.Is 按 Kind 匹配
type Error struct {
	Kind error
	Op   string
	Err  error
}

// NewError 创建一个分类错误，err 可以为 nil
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e.Kind == target
}
