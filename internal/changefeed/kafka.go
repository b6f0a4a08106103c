package changefeed

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig Debezium CDC 主题配置，主题名为 <TopicPrefix>.<table>
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	GroupID     string
}

// KafkaSource 消费 Debezium 信封格式的变更事件
type KafkaSource struct {
	cfg KafkaConfig
}

func NewKafkaSource(cfg KafkaConfig) *KafkaSource {
	return &KafkaSource{cfg: cfg}
}

// debeziumEnvelope 只解析用到的字段；schemas.enable=false 时没有 payload 外层
type debeziumEnvelope struct {
	Payload *debeziumPayload `json:"payload"`
}

type debeziumPayload struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Op     string          `json:"op"`
	TsMs   int64           `json:"ts_ms"`
}

// DecodeDebezium 把一条 Debezium 消息转为 Event；tombstone 返回 ok=false
func DecodeDebezium(table string, value []byte) (Event, bool, error) {
	if len(value) == 0 {
		return Event{}, false, nil
	}
	var env debeziumEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Event{}, false, err
	}
	p := env.Payload
	if p == nil {
		var flat debeziumPayload
		if err := json.Unmarshal(value, &flat); err != nil {
			return Event{}, false, err
		}
		p = &flat
	}
	kind, ok := ParseKind(p.Op)
	if !ok {
		return Event{}, false, stderrors.New("unknown debezium op " + p.Op)
	}
	e := Event{Table: table, Kind: kind, At: time.Now().UTC()}
	if p.TsMs > 0 {
		e.At = time.UnixMilli(p.TsMs).UTC()
	}
	if len(p.After) > 0 && string(p.After) != "null" {
		if err := json.Unmarshal(p.After, &e.New); err != nil {
			return Event{}, false, err
		}
	}
	if len(p.Before) > 0 && string(p.Before) != "null" {
		if err := json.Unmarshal(p.Before, &e.Old); err != nil {
			return Event{}, false, err
		}
	}
	if e.New == nil && kind != KindDelete {
		e.New = models.Row{}
	}
	return e, true, e.Validate()
}

func (s *KafkaSource) Subscribe(ctx context.Context, table string, filter *Filter) (*Subscription, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        s.cfg.Brokers,
		Topic:          s.cfg.TopicPrefix + "." + table,
		GroupID:        s.cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sub := newSubscription(table, filter, func() {
		cancel()
		<-done
		_ = reader.Close()
	})

	go func() {
		defer close(done)
		log := logger.Lg.With(zap.String("topic", reader.Config().Topic))
		for {
			msg, err := reader.FetchMessage(loopCtx)
			if err != nil {
				if stderrors.Is(err, context.Canceled) || stderrors.Is(err, io.EOF) {
					return
				}
				log.Warn("fetch change message failed", zap.Error(err))
				select {
				case <-loopCtx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			e, ok, err := DecodeDebezium(table, msg.Value)
			if err != nil {
				log.Warn("drop malformed debezium message", zap.Int64("offset", msg.Offset), zap.Error(err))
			} else if ok && !sub.deliver(loopCtx, e) {
				return
			}
			if err := reader.CommitMessages(loopCtx, msg); err != nil && !stderrors.Is(err, context.Canceled) {
				log.Warn("commit change message failed", zap.Error(err))
			}
		}
	}()
	return sub, nil
}

func (s *KafkaSource) Close() error { return nil }
