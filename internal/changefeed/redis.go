package changefeed

import (
	"context"

	"RescueDesk/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSource 基于 Redis Pub/Sub 的事件源，频道为 <prefix>:<table>
type RedisSource struct {
	client *redis.Client
	prefix string
}

func NewRedisSource(client *redis.Client, prefix string) *RedisSource {
	if prefix == "" {
		prefix = "rescuedesk:changes"
	}
	return &RedisSource{client: client, prefix: prefix}
}

func (s *RedisSource) channel(table string) string { return s.prefix + ":" + table }

func (s *RedisSource) Subscribe(ctx context.Context, table string, filter *Filter) (*Subscription, error) {
	ps := s.client.Subscribe(ctx, s.channel(table))
	// 等待订阅确认，保证返回后发布的事件不会丢
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(table, filter, func() {
		cancel()
		_ = ps.Close()
	})

	go func() {
		for {
			select {
			case <-loopCtx.Done():
				return
			case msg, ok := <-ps.Channel():
				if !ok {
					return
				}
				e, err := decodeEvent([]byte(msg.Payload), table)
				if err != nil {
					logger.Warn("drop malformed change event", zap.String("table", table), zap.Error(err))
					continue
				}
				if !sub.deliver(loopCtx, e) {
					return
				}
			}
		}
	}()
	return sub, nil
}

func (s *RedisSource) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	data, err := encodeEvent(e)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel(e.Table), data).Err()
}

// Close 客户端由调用方持有，这里不关闭
func (s *RedisSource) Close() error { return nil }
