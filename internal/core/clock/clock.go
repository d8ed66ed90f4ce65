package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// System 返回 UTC 当前时间
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fake 测试用时钟，手动推进
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(t time.Time) *Fake { return &Fake{now: t.UTC()} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}
