package bilibili

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultScrollBursts = 5

	minBurstPixels = 500
	maxBurstPixels = 1000
	minStepPixels  = 100
	maxStepPixels  = 300

	// 毫秒
	minStepPause  = 100
	maxStepPause  = 500
	minBurstPause = 1000
	maxBurstPause = 3000
)

// Wheel 能滚动页面的对象，*rod.Mouse 满足这个接口
type Wheel interface {
	Scroll(offsetX, offsetY float64, steps int) error
}

// Scroller 模拟人手滚动：每一轮随机一个总距离，分成若干随机的小步，
// 步与步之间短暂停顿，轮与轮之间停顿更久
type Scroller struct {
	intn  func(n int) int
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewScroller() *Scroller {
	return &Scroller{intn: rand.Intn, sleep: sleepContext}
}

// Simulate 执行 bursts 轮滚动。滚动失败只记日志，不影响调用方。
func (s *Scroller) Simulate(ctx context.Context, wheel Wheel, bursts int) {
	log := logrus.WithField("bursts", bursts)
	steps := 0

	for i := 0; i < bursts; i++ {
		total := s.between(minBurstPixels, maxBurstPixels)
		for scrolled := 0; scrolled < total; {
			px := s.between(minStepPixels, maxStepPixels)
			if err := scrollOnce(wheel, px); err != nil {
				log.WithError(err).Debug("滚动失败，忽略")
			}
			scrolled += px
			steps++

			if !s.sleep(ctx, s.pause(minStepPause, maxStepPause)) {
				log.WithField("steps", steps).Debug("滚动被取消")
				return
			}
		}
		if !s.sleep(ctx, s.pause(minBurstPause, maxBurstPause)) {
			log.WithField("steps", steps).Debug("滚动被取消")
			return
		}
	}
	log.WithField("steps", steps).Debug("滚动完成")
}

func (s *Scroller) between(min, max int) int {
	return s.intn(max-min+1) + min
}

func (s *Scroller) pause(min, max int) time.Duration {
	return time.Duration(s.between(min, max)) * time.Millisecond
}

func scrollOnce(wheel Wheel, px int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("scroll panic: %v", r)
		}
	}()
	return wheel.Scroll(0, float64(px), 1)
}

// sleepContext 睡眠 d，context 先结束时返回 false
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
