package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/lisuiheng/rfid-bridge/pkg/interfaces"
	"github.com/lisuiheng/rfid-bridge/utils"
)

// ConnectionState 表示与 POS 的连接状态
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnected    ConnectionState = "connected"
	// StateExhausted 重试用尽，终态
	StateExhausted ConnectionState = "exhausted"
)

// Status 是 Supervisor 状态快照
type Status struct {
	State      ConnectionState
	RetryCount int
	MaxRetries int
	Peer       string
}

// Supervisor 负责查找 POS、按固定间隔重试，并持有连接状态
type Supervisor struct {
	locator   Locator
	scheduler utils.Scheduler
	config    RetryConfig
	logger    *slog.Logger

	mu         sync.Mutex
	ctx        context.Context
	state      ConnectionState
	retryCount int
	peer       interfaces.PeerHandle
	retry      utils.Task
	started    bool
	stopped    bool
}

func NewSupervisor(locator Locator, scheduler utils.Scheduler, cfg RetryConfig, log *slog.Logger) (*Supervisor, error) {
	if locator == nil {
		return nil, errors.New("locator cannot be nil")
	}
	if scheduler == nil {
		scheduler = utils.NewTimerScheduler()
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultRetryDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if _, err := utils.NewStrategy(cfg.Strategy, cfg.Delay, cfg.MaxDelay); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default().With("component", "supervisor")
	}

	return &Supervisor{
		locator:   locator,
		scheduler: scheduler,
		config:    cfg,
		logger:    log,
		ctx:       context.Background(),
		state:     StateDisconnected,
	}, nil
}

// Start 立即尝试一次连接，失败则启动重试任务。重复调用无效。
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx = ctx
	s.mu.Unlock()

	s.attempt()
}

// attempt 执行一次查找并完成状态转换
func (s *Supervisor) attempt() {
	s.mu.Lock()
	if s.stopped || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	peer := s.locate(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	// 查找期间可能已被停止
	if s.stopped || s.state != StateDisconnected {
		closePeer(peer)
		return
	}

	if peer != nil {
		s.peer = peer
		s.setState(StateConnected)
		s.cancelRetry()
		return
	}

	// 计数不超过 MaxRetries
	if s.retryCount < s.config.MaxRetries {
		s.retryCount++
	}
	if s.retryCount >= s.config.MaxRetries {
		s.logger.Warn("Giving up on POS system, running in standalone mode",
			"attempts", s.retryCount)
		s.setState(StateExhausted)
		s.cancelRetry()
		return
	}

	if s.retry == nil {
		s.scheduleRetry()
	}
	s.logger.Info("POS system not found, will retry",
		"retry_count", s.retryCount,
		"max_retries", s.config.MaxRetries)
}

func (s *Supervisor) locate(ctx context.Context) (peer interfaces.PeerHandle) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Error connecting to POS system", "panic", r)
			peer = nil
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil
	}
	return s.locator.Locate(ctx)
}

// scheduleRetry 为每个重试任务创建独立的策略，任务之间不共享状态。调用时必须持有锁
func (s *Supervisor) scheduleRetry() {
	// 构造时已校验过策略名称
	strategy, _ := utils.NewStrategy(s.config.Strategy, s.config.Delay, s.config.MaxDelay)
	s.retry = s.scheduler.Repeat(strategy, s.attempt)
}

// cancelRetry 是取消重试任务的唯一入口，调用时必须持有锁
func (s *Supervisor) cancelRetry() {
	if s.retry == nil {
		return
	}
	s.retry.Cancel()
	s.retry = nil
}

// 设置连接状态
func (s *Supervisor) setState(newState ConnectionState) {
	oldState := s.state
	if oldState == newState {
		return
	}
	s.state = newState
	s.logger.Info("State changed",
		"from", oldState,
		"to", newState,
		"retry_count", s.retryCount)
}

// Peer 返回当前 POS 句柄，未连接时为 nil
func (s *Supervisor) Peer() interfaces.PeerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return nil
	}
	return s.peer
}

func (s *Supervisor) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:      s.state,
		RetryCount: s.retryCount,
		MaxRetries: s.config.MaxRetries,
	}
	if s.peer != nil && s.state == StateConnected {
		st.Peer = s.peer.Identity()
	}
	return st
}

// ReportDeliveryFailure 由 ScanRelay 在投递失败时调用。
// 只有开启 RevalidateOnSendFailure 时才回到 Disconnected 并重新开始重试，
// 否则保持原有行为：Connected 状态不变。
func (s *Supervisor) ReportDeliveryFailure(peer interfaces.PeerHandle, err error) {
	s.mu.Lock()
	if !s.config.RevalidateOnSendFailure {
		if s.state == StateConnected {
			s.logger.Warn("Delivery failed but connection is not revalidated",
				"error", err)
		}
		s.mu.Unlock()
		return
	}
	if s.stopped || s.state != StateConnected || s.peer != peer {
		s.mu.Unlock()
		return
	}

	s.logger.Warn("Delivery failed, rediscovering POS system", "error", err)
	stale := s.peer
	s.peer = nil
	s.retryCount = 0
	s.setState(StateDisconnected)
	s.cancelRetry()
	s.scheduleRetry()
	s.mu.Unlock()

	closePeer(stale)
}

// Stop 取消重试并释放已找到的连接
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancelRetry()
	peer := s.peer
	s.peer = nil
	s.mu.Unlock()

	closePeer(peer)
}

func closePeer(peer interfaces.PeerHandle) {
	if c, ok := peer.(io.Closer); ok {
		_ = c.Close()
	}
}
