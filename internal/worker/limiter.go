package worker

import (
	"context"
	"sync"
	"time"
)

// StartLimiter 滑动窗口限流器，限制窗口期内的任务启动次数。
// 保护后端存储不被集中启动的生成任务打满。
type StartLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	starts []time.Time
}

// NewStartLimiter 创建限流器，max<=0 或 window<=0 时不限流
func NewStartLimiter(max int, window time.Duration) *StartLimiter {
	return &StartLimiter{
		max:    max,
		window: window,
	}
}

// Wait 阻塞到允许启动一个任务为止
func (l *StartLimiter) Wait(ctx context.Context) error {
	if l == nil || l.max <= 0 || l.window <= 0 {
		return nil
	}
	for {
		wait := l.tryAcquire(time.Now())
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire 记录一次启动，窗口已满时返回需要等待的时长
func (l *StartLimiter) tryAcquire(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.starts[:0]
	for _, t := range l.starts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.starts = kept

	if len(l.starts) < l.max {
		l.starts = append(l.starts, now)
		return 0
	}
	return l.starts[0].Sub(cutoff)
}
