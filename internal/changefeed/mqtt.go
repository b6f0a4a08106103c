package changefeed

import (
	"context"
	"fmt"
	"time"

	"RescueDesk/pkg/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MQTTConfig 现场网关通过 MQTT 推送变更时使用
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTTSource QoS 1 订阅 <prefix>/<table>
type MQTTSource struct {
	client mqtt.Client
	prefix string
}

// NewMQTTSource 连接 broker；客户端 ID 带随机后缀避免多实例互踢
func NewMQTTSource(cfg MQTTConfig) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return NewMQTTSourceFromClient(client, cfg.TopicPrefix), nil
}

func NewMQTTSourceFromClient(client mqtt.Client, prefix string) *MQTTSource {
	if prefix == "" {
		prefix = "rescuedesk/changes"
	}
	return &MQTTSource{client: client, prefix: prefix}
}

func (s *MQTTSource) topic(table string) string { return s.prefix + "/" + table }

func (s *MQTTSource) Subscribe(ctx context.Context, table string, filter *Filter) (*Subscription, error) {
	topic := s.topic(table)
	loopCtx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(table, filter, func() {
		cancel()
		s.client.Unsubscribe(topic).WaitTimeout(5 * time.Second)
	})

	token := s.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		e, err := decodeEvent(msg.Payload(), table)
		if err != nil {
			logger.Warn("drop malformed change event", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		sub.deliver(loopCtx, e)
	})
	select {
	case <-token.Done():
	case <-ctx.Done():
		sub.Unsubscribe()
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return sub, nil
}

func (s *MQTTSource) Publish(_ context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	data, err := encodeEvent(e)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic(e.Table), 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish %s: timeout", e.Table)
	}
	return token.Error()
}

func (s *MQTTSource) Close() error {
	s.client.Disconnect(250)
	return nil
}
