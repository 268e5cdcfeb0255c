package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	cookies []Cookie
	closed  atomic.Bool
}

func (s *fakeSession) Cookies(ctx context.Context) ([]Cookie, error) { return s.cookies, nil }

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeProvider struct {
	session *fakeSession
	err     error
}

func (p *fakeProvider) OpenSession(ctx context.Context) (*fakeSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

type fakeAuth struct {
	state AuthState
	err   error
	calls atomic.Int32
}

func (a *fakeAuth) Authenticate(ctx context.Context, s *fakeSession) (AuthState, error) {
	a.calls.Add(1)
	return a.state, a.err
}

type fakeExtractor struct {
	items     []ItemReference
	searchErr error
	failing   map[ItemReference]bool
	comments  int

	searched atomic.Bool
	mu       sync.Mutex
	fetched  []ItemReference
}

func (e *fakeExtractor) Search(ctx context.Context, s *fakeSession, keyword string) ([]ItemReference, error) {
	e.searched.Store(true)
	return e.items, e.searchErr
}

func (e *fakeExtractor) FetchItem(ctx context.Context, s *fakeSession, item ItemReference, onComment CommentHandler) (*EngagementSnapshot, error) {
	e.mu.Lock()
	e.fetched = append(e.fetched, item)
	e.mu.Unlock()

	if e.failing[item] {
		return nil, errors.New("selector wait failed")
	}
	for i := 0; i < e.comments; i++ {
		onComment(item, CommentRecord{Author: "up", ID: int64(i), Message: "hi"})
	}
	likes := "100"
	return &EngagementSnapshot{Item: item, Likes: &likes}, nil
}

func newFakePipeline(ex *fakeExtractor) (*Pipeline[*fakeSession], *fakeSession) {
	s := &fakeSession{}
	return &Pipeline[*fakeSession]{
		Sessions:  &fakeProvider{session: s},
		Extractor: ex,
		Budget:    2,
	}, s
}

func TestPipelineRun(t *testing.T) {
	items := makeItems(4)
	ex := &fakeExtractor{items: items, failing: map[ItemReference]bool{items[2]: true}, comments: 3}
	p, s := newFakePipeline(ex)

	var mu sync.Mutex
	var seen []CommentRecord
	p.OnComment = func(item ItemReference, c CommentRecord) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	}

	res, err := p.Run(context.Background(), "golang")

	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "golang", res.Keyword)
	assert.Equal(t, items, res.Items)
	assert.Len(t, res.Snapshots, 3)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(9), res.Comments)
	assert.Len(t, seen, 9)
	assert.ElementsMatch(t, items, ex.fetched)
	assert.True(t, s.closed.Load())
}

func TestPipelineEmptySearchStopsBeforeFanOut(t *testing.T) {
	ex := &fakeExtractor{}
	p, s := newFakePipeline(ex)

	res, err := p.Run(context.Background(), "没有结果的关键词")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptySearchResult))
	assert.Empty(t, res.Items)
	assert.Empty(t, ex.fetched)
	assert.True(t, s.closed.Load())
}

func TestPipelineLaunchFailure(t *testing.T) {
	ex := &fakeExtractor{items: makeItems(1)}
	p := &Pipeline[*fakeSession]{
		Sessions:  &fakeProvider{err: errors.New("no chrome binary")},
		Extractor: ex,
	}

	_, err := p.Run(context.Background(), "golang")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLaunch))
	assert.False(t, ex.searched.Load())
}

func TestPipelineLaunchFailureKeepsKind(t *testing.T) {
	launchErr := NewError(ErrLaunch, "launch chrome", errors.New("exit status 1"))
	p := &Pipeline[*fakeSession]{
		Sessions:  &fakeProvider{err: launchErr},
		Extractor: &fakeExtractor{},
	}

	_, err := p.Run(context.Background(), "golang")

	assert.Same(t, launchErr, err)
}

func TestPipelineAuthFailureHalts(t *testing.T) {
	ex := &fakeExtractor{items: makeItems(2)}
	p, s := newFakePipeline(ex)
	auth := &fakeAuth{state: AuthUnauthenticated, err: NewError(ErrLoginTimeout, "await authentication", nil)}
	p.Auth = auth

	_, err := p.Run(context.Background(), "golang")

	assert.True(t, errors.Is(err, ErrLoginTimeout))
	assert.Equal(t, int32(1), auth.calls.Load())
	assert.False(t, ex.searched.Load())
	assert.True(t, s.closed.Load())
}

func TestPipelineAuthSuccess(t *testing.T) {
	ex := &fakeExtractor{items: makeItems(2)}
	p, _ := newFakePipeline(ex)
	p.Auth = &fakeAuth{state: AuthAuthenticated}

	res, err := p.Run(context.Background(), "golang")

	require.NoError(t, err)
	assert.Len(t, res.Snapshots, 2)
}

func TestPipelineSearchError(t *testing.T) {
	ex := &fakeExtractor{searchErr: errors.New("search box not found")}
	p, _ := newFakePipeline(ex)

	_, err := p.Run(context.Background(), "golang")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search box not found")
	assert.Empty(t, ex.fetched)
}
