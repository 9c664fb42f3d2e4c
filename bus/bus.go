// bus/bus.go
package bus

import (
	"log/slog"
	"reflect"

	"github.com/cskr/pubsub"
)

// Subscription 是总线订阅返回的通道
type Subscription chan interface{}

// MessageBus 在传输层与监听者之间转发入站消息
type MessageBus interface {
	Publish(topic string, msg interface{})
	Subscribe(topic string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

var _ MessageBus = (*PubSubBus)(nil)

// New 创建总线，capacity 是每个订阅的缓冲大小
func New(capacity int, log *slog.Logger) *PubSubBus {
	if capacity <= 0 {
		capacity = 64
	}
	if log == nil {
		log = slog.Default().With("component", "bus")
	}
	return &PubSubBus{
		ps:     pubsub.New(capacity),
		logger: log,
	}
}

func (b *PubSubBus) Publish(topic string, msg interface{}) {
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(msg))
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topic string) Subscription {
	ch := b.ps.Sub(topic)
	b.logger.Debug("subscribe", "topic", topic)
	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", "mode", "all")
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}

func payloadType(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
