package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lisuiheng/rfid-bridge/bus"
	"github.com/lisuiheng/rfid-bridge/notify"
	"github.com/lisuiheng/rfid-bridge/protocols/websocket"
	"github.com/lisuiheng/rfid-bridge/utils"
)

// ScanSource 产生扫描到的商品 ID，直到 ctx 结束或数据源耗尽
type ScanSource interface {
	Read(ctx context.Context, out chan<- string) error
}

// Bridge 是程序启动时构造一次的应用上下文，持有各组件并把它们连起来
type Bridge struct {
	bus        bus.MessageBus
	supervisor *Supervisor
	relay      *ScanRelay
	listener   *ResponseListener
	handler    ResponseHandler
	logger     *slog.Logger

	mu        sync.Mutex
	sub       *Subscription
	closeOnce sync.Once
	closed    bool
}

// Deps 允许替换 Bridge 的协作者，零值字段使用默认实现
type Deps struct {
	Bus       bus.MessageBus
	Locator   Locator
	Scheduler utils.Scheduler
	Notifier  Notifier
	Handler   ResponseHandler
}

// NewBridge 按配置组装组件
func NewBridge(cfg Config, deps Deps, log *slog.Logger) (*Bridge, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	messageBus := deps.Bus
	if messageBus == nil {
		messageBus = bus.New(64, log.With("component", "bus"))
	}

	locator := deps.Locator
	if locator == nil {
		clientID := cfg.System.ClientID
		if clientID == "" {
			clientID = uuid.NewString()
		}
		dialer := websocket.NewDialer(websocket.Config{
			ProtocolVersion: 1,
			AccessToken:     cfg.Peer.AccessToken,
			ClientID:        clientID,
		}, messageBus, log.With("component", "websocket"))
		locator = NewPeerLocator(cfg.Peer, dialer, log.With("component", "locator"))
		log.Info("Bridge identity", "client_id", clientID)
	}

	notifier := deps.Notifier
	if notifier == nil {
		sender, err := NewSender(cfg.Notify.Backend, log)
		if err != nil {
			return nil, err
		}
		notifier = notify.NewFallback(notify.DefaultCatalog(), sender, log.With("component", "notify"))
	}

	supervisor, err := NewSupervisor(locator, deps.Scheduler, cfg.Retry, log.With("component", "supervisor"))
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor: %w", err)
	}

	relay := NewScanRelay(notifier, log.With("component", "relay"))
	relay.OnDeliveryFailure(supervisor.ReportDeliveryFailure)

	handler := deps.Handler
	if handler == nil {
		handler = LogResponse(log.With("component", "pos"))
	}

	return &Bridge{
		bus:        messageBus,
		supervisor: supervisor,
		relay:      relay,
		listener:   NewResponseListener(messageBus, log.With("component", "listener")),
		handler:    handler,
		logger:     log,
	}, nil
}

// NewSender 根据配置创建提示后端
func NewSender(backend string, log *slog.Logger) (notify.Sender, error) {
	switch backend {
	case "", notify.BackendConsole:
		return notify.NewConsoleSender(nil), nil
	case notify.BackendDesktop:
		return notify.NewDesktopSender(log.With("component", "notify.desktop")), nil
	default:
		return nil, fmt.Errorf("unsupported notify backend: %s", backend)
	}
}

// Start 注册应答监听并开始查找 POS
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.closed || b.sub != nil {
		b.mu.Unlock()
		return
	}
	b.sub = b.listener.Attach(b.handler)
	b.mu.Unlock()

	b.supervisor.Start(ctx)
}

// Scan 处理一次扫描
func (b *Bridge) Scan(productID string) {
	b.relay.Send(b.supervisor.Peer(), productID)
}

// Status 获取当前连接状态
func (b *Bridge) Status() Status {
	return b.supervisor.Status()
}

// Run 启动桥接并处理扫描源，直到 ctx 结束或扫描源结束。已关闭的桥接返回 ErrBridgeClosed
func (b *Bridge) Run(ctx context.Context, source ScanSource) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBridgeClosed
	}

	b.logger.Info("Starting bridge main loop")
	defer b.logger.Info("Bridge main loop stopped")

	b.Start(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scans := make(chan string, 16)
	errChan := make(chan error, 1)
	go func() {
		defer close(scans)
		errChan <- source.Read(ctx, scans)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case productID, ok := <-scans:
			if !ok {
				err := <-errChan
				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("scan source failed: %w", err)
				}
				return nil
			}
			b.Scan(productID)
		}
	}
}

// Close 按顺序释放资源：先停止查找和连接，再退订，最后关闭总线
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.logger.Info("Closing bridge")
		b.supervisor.Stop()

		b.mu.Lock()
		b.closed = true
		sub := b.sub
		b.sub = nil
		b.mu.Unlock()

		if sub != nil {
			sub.Detach()
		}
		b.bus.Close()
	})
	return nil
}
