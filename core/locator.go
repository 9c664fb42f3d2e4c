package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lisuiheng/rfid-bridge/pkg/interfaces"
)

// Locator 查找 POS；找不到时返回 nil
type Locator interface {
	Locate(ctx context.Context) interfaces.PeerHandle
}

// PeerLocator 先尝试 opener，再按窗口名查找
type PeerLocator struct {
	config PeerConfig
	dialer interfaces.Dialer
	logger *slog.Logger

	mu    sync.Mutex
	named map[string]interfaces.PeerHandle
}

var _ Locator = (*PeerLocator)(nil)

func NewPeerLocator(cfg PeerConfig, dialer interfaces.Dialer, log *slog.Logger) *PeerLocator {
	if cfg.WindowName == "" {
		cfg.WindowName = DefaultWindowName
	}
	if cfg.OpenerMarker == "" {
		cfg.OpenerMarker = DefaultOpenerMarker
	}
	if log == nil {
		log = slog.Default().With("component", "locator")
	}
	return &PeerLocator{
		config: cfg,
		dialer: dialer,
		logger: log,
		named:  make(map[string]interfaces.PeerHandle),
	}
}

func (l *PeerLocator) Locate(ctx context.Context) interfaces.PeerHandle {
	if peer := l.fromOpener(ctx); peer != nil {
		l.logger.Info("Connected to main POS system", "via", "opener", "peer", peer.Identity())
		return peer
	}
	if peer := l.fromWindowName(ctx, l.config.WindowName); peer != nil {
		l.logger.Info("Connected to main POS system", "via", "window_name", "peer", peer.Identity())
		return peer
	}
	l.logger.Warn("Main POS system not found, running in standalone mode")
	return nil
}

func (l *PeerLocator) fromOpener(ctx context.Context) interfaces.PeerHandle {
	if l.config.OpenerURL == "" {
		return nil
	}
	u, err := url.Parse(l.config.OpenerURL)
	if err != nil {
		l.logger.Warn("Invalid opener url", "url", l.config.OpenerURL, "error", err)
		return nil
	}
	if !strings.Contains(u.Path, l.config.OpenerMarker) {
		l.logger.Debug("Opener is not the main POS application", "path", u.Path, "marker", l.config.OpenerMarker)
		return nil
	}

	peer, err := l.dial(ctx, l.config.OpenerURL)
	if err != nil {
		l.logger.Debug("Opener unreachable", "url", l.config.OpenerURL, "error", err)
		return nil
	}
	return peer
}

// fromWindowName 复用该名称下仍存活的连接，只有不存在时才新建
func (l *PeerLocator) fromWindowName(ctx context.Context, name string) interfaces.PeerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()

	if peer, ok := l.named[name]; ok {
		if !peer.Closed() {
			return peer
		}
		delete(l.named, name)
	}

	endpoint, ok := l.config.Windows[name]
	if !ok || endpoint == "" {
		l.logger.Debug("No endpoint registered for window", "name", name)
		return nil
	}

	peer, err := l.dial(ctx, endpoint)
	if err != nil {
		l.logger.Debug("Named window unreachable", "name", name, "endpoint", endpoint, "error", err)
		return nil
	}
	if peer == nil || peer.Closed() {
		return nil
	}
	l.named[name] = peer
	return peer
}

// dial 把拨号中的 panic 也当作未找到处理
func (l *PeerLocator) dial(ctx context.Context, endpoint string) (peer interfaces.PeerHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			peer = nil
			err = fmt.Errorf("%w: dial panicked: %v", ErrPeerNotFound, r)
		}
	}()

	if l.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.DialTimeout)
		defer cancel()
	}

	start := time.Now()
	peer, err = l.dialer.Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeerNotFound, err)
	}
	l.logger.Debug("Dialed peer", "endpoint", endpoint, "elapsed", time.Since(start))
	return peer, nil
}
