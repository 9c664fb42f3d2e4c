// pkg/interfaces/transport.go
package interfaces

import (
	"context"
	"errors"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrPeerClosed       = errors.New("peer closed")
	// ErrConnectionLost 表示连接被对端或网络断开，而不是本地关闭
	ErrConnectionLost = errors.New("connection lost")
)

// PeerHandle 是对 POS 执行上下文的引用，只用于投递消息和检查存活
type PeerHandle interface {
	Post(data []byte) error
	Closed() bool
	Identity() string
}

// Dialer 根据端点地址获取一个 PeerHandle
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (PeerHandle, error)
}

type Message struct {
	Payload []byte
	Type    MessageType
	Source  string
}

type MessageType int

const (
	MsgText    MessageType = iota // JSON文本
	MsgBinary                     // 二进制数据
	MsgControl                    // 控制指令
)

// TopicInbound 是入站消息在总线上的主题
const TopicInbound = "peer.inbound"
