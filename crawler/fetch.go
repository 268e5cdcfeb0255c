package crawler

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// FetchFunc 抓取单个条目
type FetchFunc func(ctx context.Context, item ItemReference) (*EngagementSnapshot, error)

// FetchAll 一次性为所有条目启动任务，用计数信号量限制同时处理的数量。
// 单个条目失败只记录日志并从结果中省略，不影响其他条目。
// 返回结果保持提交顺序。
func FetchAll(ctx context.Context, items []ItemReference, budget WorkBudget, fetch FetchFunc) []EngagementSnapshot {
	if budget < 1 {
		budget = 1
	}
	sem := semaphore.NewWeighted(int64(budget))
	slots := make([]*EngagementSnapshot, len(items))

	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				logrus.WithError(err).WithField("item", item).Warn("等待并发名额时被取消")
				return nil
			}
			defer sem.Release(1)

			snap, err := fetchOne(ctx, item, fetch)
			if err != nil {
				logrus.WithError(err).WithField("item", item).Error("详情抓取失败，跳过该条目")
				return nil
			}
			slots[i] = snap
			return nil
		})
	}
	// 错误都已在条目边界处理
	_ = g.Wait()

	snapshots := make([]EngagementSnapshot, 0, len(items))
	for _, s := range slots {
		if s != nil {
			snapshots = append(snapshots, *s)
		}
	}
	return snapshots
}

func fetchOne(ctx context.Context, item ItemReference, fetch FetchFunc) (snap *EngagementSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = NewError(ErrItemFetch, "fetch "+item.String(), errors.Errorf("panic: %v", r))
		}
	}()

	snap, err = fetch(ctx, item)
	if err != nil {
		return nil, NewError(ErrItemFetch, "fetch "+item.String(), err)
	}
	if snap == nil {
		return nil, NewError(ErrItemFetch, "fetch "+item.String(), errors.New("no snapshot"))
	}
	return snap, nil
}
