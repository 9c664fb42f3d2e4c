package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lisuiheng/rfid-bridge/pkg/interfaces"
	"github.com/lisuiheng/rfid-bridge/protocols/envelope"
)

// Notifier 在扫描无法送达 POS 时展示扫描结果
type Notifier interface {
	Notify(productID string)
}

// ScanRelay 把扫描事件发给 POS，失败时交给 Notifier
type ScanRelay struct {
	fallback  Notifier
	now       func() time.Time
	onFailure func(peer interfaces.PeerHandle, err error)
	logger    *slog.Logger
}

func NewScanRelay(fallback Notifier, log *slog.Logger) *ScanRelay {
	if log == nil {
		log = slog.Default().With("component", "relay")
	}
	return &ScanRelay{
		fallback: fallback,
		now:      time.Now,
		logger:   log,
	}
}

// OnDeliveryFailure 注册投递失败回调（Supervisor 用它做重新校验）
func (r *ScanRelay) OnDeliveryFailure(fn func(peer interfaces.PeerHandle, err error)) {
	r.onFailure = fn
}

// Send 投递一次扫描；送达或回退提示二者恰好发生其一，从不返回错误
func (r *ScanRelay) Send(peer interfaces.PeerHandle, productID string) {
	if peer == nil {
		r.logger.Info("RFID scan (standalone)", "product_id", productID)
		r.notify(productID)
		return
	}

	if err := r.deliver(peer, productID); err != nil {
		r.logger.Error("Error sending RFID scan", "product_id", productID, "peer", safeIdentity(peer), "error", err)
		r.notify(productID)
		if r.onFailure != nil {
			r.onFailure(peer, err)
		}
		return
	}
	r.logger.Info("RFID scan sent to POS", "product_id", productID, "peer", safeIdentity(peer))
}

func (r *ScanRelay) deliver(peer interfaces.PeerHandle, productID string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrDeliveryFailure, rec)
		}
	}()

	if peer.Closed() {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, interfaces.ErrPeerClosed)
	}

	data, err := envelope.Encode(envelope.NewScan(productID, r.now()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	if err := peer.Post(data); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}
	return nil
}

func (r *ScanRelay) notify(productID string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Fallback notification panicked", "product_id", productID, "panic", rec)
		}
	}()
	if r.fallback != nil {
		r.fallback.Notify(productID)
	}
}

func safeIdentity(peer interfaces.PeerHandle) (id string) {
	defer func() {
		if recover() != nil {
			id = "unknown"
		}
	}()
	return peer.Identity()
}
