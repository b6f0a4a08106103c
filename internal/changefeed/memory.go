package changefeed

import (
	"context"
	"sync"
	"time"
)

// MemoryBus 进程内事件源，同时实现 Publisher
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*Subscription]struct{})}
}

func (b *MemoryBus) Subscribe(_ context.Context, table string, filter *Filter) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(table, filter, func() {
		b.mu.Lock()
		delete(b.subs[table], sub)
		b.mu.Unlock()
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.subs[table] == nil {
		b.subs[table] = make(map[*Subscription]struct{})
	}
	b.subs[table][sub] = struct{}{}
	return sub, nil
}

// Publish 同步投递给当前所有订阅者
func (b *MemoryBus) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[e.Table]))
	for sub := range b.subs[e.Table] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(ctx, e)
	}
	return nil
}

// Close 结束全部订阅
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	var all []*Subscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()
	for _, sub := range all {
		sub.Unsubscribe()
	}
	return nil
}
