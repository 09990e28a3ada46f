package core_test

import (
	"context"
	"sync"
	"time"

	"github.com/fleetsheriff/sheriff/core"
)

// fakeBus is an in-memory core.Bus for tests: PublishOrders appends to a
// slice a test can inspect, and the two Subscribe methods hand back
// channels the test feeds directly.
type fakeBus struct {
	mu     sync.Mutex
	orders []core.OrdersFrame

	infoCh   chan core.InfoFrame
	ordersCh chan core.OrdersFrame
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		infoCh:   make(chan core.InfoFrame, 16),
		ordersCh: make(chan core.OrdersFrame, 16),
	}
}

func (b *fakeBus) PublishOrders(ctx context.Context, frame core.OrdersFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, frame)
	return nil
}

func (b *fakeBus) SubscribeInfo(ctx context.Context) (<-chan core.InfoFrame, error) {
	return b.infoCh, nil
}

func (b *fakeBus) SubscribeOrders(ctx context.Context) (<-chan core.OrdersFrame, error) {
	return b.ordersCh, nil
}

func (b *fakeBus) publishedOrders() []core.OrdersFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.OrdersFrame(nil), b.orders...)
}

// fakeClock is a Clock a test can advance manually.
type fakeClock struct {
	mu  sync.Mutex
	now int64 // unix micros
}

func newFakeClock(startMicros int64) *fakeClock {
	return &fakeClock{now: startMicros}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMicro(c.now)
}

func (c *fakeClock) Advance(micros int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += micros
}
