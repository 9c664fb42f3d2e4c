// protocols/websocket/transport.go
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/rfid-bridge/bus"
	"github.com/lisuiheng/rfid-bridge/pkg/interfaces"
)

var (
	_ interfaces.PeerHandle = (*WSPeer)(nil)
	_ interfaces.Dialer     = (*Dialer)(nil)
)

const defaultWriteTimeout = 5 * time.Second

// Config 定义websocket特有的配置
type Config struct {
	ProtocolVersion int
	AccessToken     string
	ClientID        string
	WriteTimeout    time.Duration
}

// Dialer 建立到 POS 的连接，入站消息发布到总线
type Dialer struct {
	config Config
	bus    bus.MessageBus
	logger *slog.Logger
}

func NewDialer(config Config, messageBus bus.MessageBus, log *slog.Logger) *Dialer {
	if config.ProtocolVersion == 0 {
		config.ProtocolVersion = 1
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if log == nil {
		log = slog.Default().With("component", "websocket")
	}
	return &Dialer{
		config: config,
		bus:    messageBus,
		logger: log,
	}
}

func (d *Dialer) Dial(ctx context.Context, endpoint string) (interfaces.PeerHandle, error) {
	headers := http.Header{}
	if d.config.AccessToken != "" {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s", d.config.AccessToken))
	}
	headers.Set("Protocol-Version", fmt.Sprintf("%d", d.config.ProtocolVersion))
	if d.config.ClientID != "" {
		headers.Set("Client-Id", d.config.ClientID)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}

	p := &WSPeer{
		conn:         conn,
		endpoint:     endpoint,
		bus:          d.bus,
		writeTimeout: d.config.WriteTimeout,
		logger:       d.logger.With("peer", endpoint),
		closeChan:    make(chan struct{}),
		done:         make(chan struct{}),
	}
	go p.readPump()

	d.logger.Info("Connected to peer", "endpoint", endpoint)
	return p, nil
}

// WSPeer 是一条到 POS 的 websocket 连接
type WSPeer struct {
	conn         *websocket.Conn
	endpoint     string
	bus          bus.MessageBus
	writeTimeout time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	closeOnce sync.Once
	closeChan chan struct{}
	done      chan struct{}
	lost      atomic.Bool
}

func (p *WSPeer) readPump() {
	defer close(p.done)
	defer p.markClosed()
	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			select {
			case <-p.closeChan:
			default:
				p.lost.Store(true)
				p.logger.Warn("Peer connection lost", "error", err)
			}
			return
		}
		if p.bus == nil {
			continue
		}
		p.bus.Publish(interfaces.TopicInbound, interfaces.Message{
			Payload: data,
			Type:    convertMsgType(msgType),
			Source:  p.endpoint,
		})
	}
}

func convertMsgType(wsType int) interfaces.MessageType {
	switch wsType {
	case websocket.TextMessage:
		return interfaces.MsgText
	case websocket.BinaryMessage:
		return interfaces.MsgBinary
	default:
		return interfaces.MsgControl
	}
}

// Post 发送一条文本消息。这里不校验接收方身份，
// 任何持有该端点的进程都能收到消息。
func (p *WSPeer) Post(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Closed() {
		if p.lost.Load() {
			return fmt.Errorf("%w: %w", interfaces.ErrPeerClosed, interfaces.ErrConnectionLost)
		}
		return interfaces.ErrPeerClosed
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.markClosed()
		return fmt.Errorf("write to %s: %w", p.endpoint, err)
	}
	return nil
}

func (p *WSPeer) Closed() bool {
	select {
	case <-p.closeChan:
		return true
	default:
		return false
	}
}

func (p *WSPeer) Identity() string { return p.endpoint }

func (p *WSPeer) markClosed() {
	p.closeOnce.Do(func() {
		close(p.closeChan)
	})
}

// Close 关闭连接并等待读循环退出
func (p *WSPeer) Close() error {
	p.markClosed()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := p.conn.Close()
	<-p.done
	return err
}
