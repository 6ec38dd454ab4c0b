package ratelimit

import (
	"context"
	"sync"
	"time"
)

var _ Limiter = (*FixWindowLimiter)(nil)

// FixWindowLimiter allows maxRate calls per key in each window of interval.
type FixWindowLimiter struct {
	interval time.Duration
	// at most maxRate calls within interval
	maxRate int64
	mutex   sync.Mutex
	windows map[string]*fixWindow
	now     func() time.Time
}

type fixWindow struct {
	start time.Time
	cnt   int64
}

func NewFixWindowLimiter(interval time.Duration, maxRate int64) *FixWindowLimiter {
	return &FixWindowLimiter{
		interval: interval,
		maxRate:  maxRate,
		windows:  make(map[string]*fixWindow, 8),
		now:      time.Now,
	}
}

func (l *FixWindowLimiter) Limit(_ context.Context, key string) (bool, error) {
	now := l.now()
	l.mutex.Lock()
	defer l.mutex.Unlock()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.interval {
		// a new window begins
		w = &fixWindow{start: now}
		l.windows[key] = w
	}
	if w.cnt >= l.maxRate {
		return true, nil
	}
	w.cnt++
	return false, nil
}
