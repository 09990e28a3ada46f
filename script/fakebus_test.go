package script_test

import (
	"context"
	"sync"
	"time"

	"github.com/fleetsheriff/sheriff/core"
)

// scriptTestBus is an in-memory core.Bus for script package tests: it
// records published orders frames and hands back channels a test can feed
// directly, the same shape as the core package's own fakebus_test.go.
type scriptTestBus struct {
	mu     sync.Mutex
	orders []core.OrdersFrame

	infoCh   chan core.InfoFrame
	ordersCh chan core.OrdersFrame
}

func fakeBusForScriptTests() *scriptTestBus {
	return &scriptTestBus{
		infoCh:   make(chan core.InfoFrame, 16),
		ordersCh: make(chan core.OrdersFrame, 16),
	}
}

func (b *scriptTestBus) PublishOrders(ctx context.Context, frame core.OrdersFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, frame)
	return nil
}

func (b *scriptTestBus) SubscribeInfo(ctx context.Context) (<-chan core.InfoFrame, error) {
	return b.infoCh, nil
}

func (b *scriptTestBus) SubscribeOrders(ctx context.Context) (<-chan core.OrdersFrame, error) {
	return b.ordersCh, nil
}

// scriptTestClock is a fixed core.Clock, the same shape as the core
// package's own fakebus_test.go fakeClock, pinned near the small
// hard-coded UTime values engine_test.go uses on InfoFrame literals.
type scriptTestClock struct {
	now int64 // unix micros
}

func newScriptTestClock(startMicros int64) *scriptTestClock {
	return &scriptTestClock{now: startMicros}
}

func (c *scriptTestClock) Now() time.Time {
	return time.UnixMicro(c.now)
}
