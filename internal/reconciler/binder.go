package reconciler

import (
	"context"
	"sync"
	"time"

	"RescueDesk/internal/changefeed"
	"RescueDesk/pkg/logger"

	"go.uber.org/zap"
)

// Applier 可接收变更事件的表
type Applier interface {
	Name() string
	Apply(e changefeed.Event) error
}

// Binder 把事件源的订阅接到表上。订阅意外结束时按退避重新订阅，
// 并回调 OnResubscribe 以便调用方补拉断线期间的快照。
type Binder struct {
	source changefeed.Source

	// MinBackoff/MaxBackoff 重新订阅的等待区间
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// OnResubscribe 重新订阅成功后调用（首次订阅不调用）
	OnResubscribe func(table string)

	mu     sync.Mutex
	subs   map[string]*changefeed.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewBinder(source changefeed.Source) *Binder {
	return &Binder{
		source:     source,
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
		subs:       make(map[string]*changefeed.Subscription),
	}
}

// Bind 为每张表建立订阅；首次订阅失败直接返回错误
func (b *Binder) Bind(ctx context.Context, filter *changefeed.Filter, tables ...Applier) error {
	b.mu.Lock()
	if b.cancel == nil {
		ctx, b.cancel = context.WithCancel(ctx)
	} else {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	for _, t := range tables {
		sub, err := b.source.Subscribe(ctx, t.Name(), filter)
		if err != nil {
			b.Close()
			return err
		}
		b.setSub(t.Name(), sub)
		b.wg.Add(1)
		go b.run(ctx, t, filter, sub)
	}
	return nil
}

func (b *Binder) setSub(table string, sub *changefeed.Subscription) {
	b.mu.Lock()
	b.subs[table] = sub
	b.mu.Unlock()
}

func (b *Binder) run(ctx context.Context, t Applier, filter *changefeed.Filter, sub *changefeed.Subscription) {
	defer b.wg.Done()
	defer func() { sub.Unsubscribe() }()
	log := logger.Named("binder").With(zap.String("table", t.Name()))
	backoff := b.MinBackoff

	for {
		b.drain(ctx, t, sub, log)
		if ctx.Err() != nil {
			return
		}
		log.Warn("subscription ended, resubscribing", zap.Duration("backoff", backoff))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			next, err := b.source.Subscribe(ctx, t.Name(), filter)
			if err == nil {
				sub = next
				b.setSub(t.Name(), sub)
				backoff = b.MinBackoff
				if b.OnResubscribe != nil {
					b.OnResubscribe(t.Name())
				}
				break
			}
			log.Warn("resubscribe failed", zap.Error(err))
			backoff *= 2
			if backoff > b.MaxBackoff {
				backoff = b.MaxBackoff
			}
		}
	}
}

func (b *Binder) drain(ctx context.Context, t Applier, sub *changefeed.Subscription, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := t.Apply(e); err != nil {
				log.Warn("drop change event", zap.String("kind", string(e.Kind)), zap.String("id", e.ID()), zap.Error(err))
			}
		}
	}
}

// Close 取消全部订阅并等待处理协程退出，可重复调用
func (b *Binder) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		if b.cancel != nil {
			b.cancel()
		}
		subs := make([]*changefeed.Subscription, 0, len(b.subs))
		for _, s := range b.subs {
			subs = append(subs, s)
		}
		b.mu.Unlock()
		for _, s := range subs {
			s.Unsubscribe()
		}
		b.wg.Wait()
	})
}
