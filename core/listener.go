package core

import (
	"log/slog"
	"sync"

	"github.com/lisuiheng/rfid-bridge/bus"
	"github.com/lisuiheng/rfid-bridge/pkg/interfaces"
	"github.com/lisuiheng/rfid-bridge/protocols/envelope"
)

// ResponseHandler 处理 POS 的应答
type ResponseHandler func(resp envelope.Response)

// ResponseListener 订阅入站消息，只把 POS_RESPONSE 转给处理函数
type ResponseListener struct {
	bus    bus.MessageBus
	logger *slog.Logger
}

func NewResponseListener(messageBus bus.MessageBus, log *slog.Logger) *ResponseListener {
	if log == nil {
		log = slog.Default().With("component", "listener")
	}
	return &ResponseListener{
		bus:    messageBus,
		logger: log,
	}
}

// Subscription 是一次 Attach 的句柄
type Subscription struct {
	bus  bus.MessageBus
	ch   bus.Subscription
	once sync.Once
	done chan struct{}
}

// Detach 释放订阅并等待分发循环退出，可重复调用
func (s *Subscription) Detach() {
	s.once.Do(func() {
		select {
		case <-s.done:
			// 总线已关闭，通道随之关闭
		default:
			s.bus.Unsubscribe(s.ch, interfaces.TopicInbound)
		}
	})
	<-s.done
}

// Attach 注册处理函数，直到 Detach 前一直有效
func (l *ResponseListener) Attach(handler ResponseHandler) *Subscription {
	sub := &Subscription{
		bus:  l.bus,
		ch:   l.bus.Subscribe(interfaces.TopicInbound),
		done: make(chan struct{}),
	}
	go l.dispatch(sub, handler)
	return sub
}

func (l *ResponseListener) dispatch(sub *Subscription, handler ResponseHandler) {
	defer close(sub.done)
	for raw := range sub.ch {
		msg, ok := raw.(interfaces.Message)
		if !ok || msg.Type != interfaces.MsgText {
			continue
		}

		switch m := envelope.Decode(msg.Payload).(type) {
		case envelope.Response:
			l.logger.Debug("Response from POS", "success", m.Success, "error", m.Error)
			l.invoke(handler, m)
		case envelope.Scan:
			l.logger.Debug("Ignoring scan echoed by peer", "product_id", m.ProductID)
		case envelope.Unknown:
			l.logger.Debug("Ignoring inbound message", "type", m.Type, "source", msg.Source)
		}
	}
}

func (l *ResponseListener) invoke(handler ResponseHandler, resp envelope.Response) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Response handler panicked", "panic", r)
		}
	}()
	handler(resp)
}

// LogResponse 是默认的应答处理：记录 POS 是否处理成功
func LogResponse(log *slog.Logger) ResponseHandler {
	return func(resp envelope.Response) {
		if resp.Success {
			log.Info("POS processed RFID scan successfully")
			return
		}
		log.Warn("POS failed to process RFID scan", "error", resp.Error)
	}
}
