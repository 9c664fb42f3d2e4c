package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/lisuiheng/rfid-bridge/pkg/interfaces"
	"github.com/lisuiheng/rfid-bridge/utils"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePeer struct {
	mu      sync.Mutex
	id      string
	closed  bool
	postErr error
	panicky bool
	posts   [][]byte
	closes  int
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) Post(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicky {
		panic("post exploded")
	}
	if p.postErr != nil {
		return p.postErr
	}
	p.posts = append(p.posts, append([]byte(nil), data...))
	return nil
}

func (p *fakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) Identity() string { return p.id }

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closes++
	return nil
}

func (p *fakePeer) setClosed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeer) postCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

// scriptedLocator 按顺序返回预设结果，用完后一直返回 nil
type scriptedLocator struct {
	mu      sync.Mutex
	results []interfaces.PeerHandle
	calls   int
}

func (l *scriptedLocator) Locate(ctx context.Context) interfaces.PeerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if len(l.results) == 0 {
		return nil
	}
	next := l.results[0]
	l.results = l.results[1:]
	return next
}

func (l *scriptedLocator) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// manualScheduler 记录任务，由测试手动触发
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	mu        sync.Mutex
	strategy  utils.ReconnectStrategy
	fn        func()
	cancelled bool
	cancels   int
}

func (s *manualScheduler) Repeat(strategy utils.ReconnectStrategy, fn func()) utils.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{strategy: strategy, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

func (t *manualTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancels++
	if t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

func (t *manualTask) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// fire 模拟一次到期；已取消的任务不执行
func (t *manualTask) fire() bool {
	if t.Cancelled() {
		return false
	}
	t.strategy.NextDelay()
	t.fn()
	return true
}

func (s *manualScheduler) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *manualScheduler) task(t *testing.T, i int) *manualTask {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.tasks) {
		t.Fatalf("expected task %d to be scheduled, have %d", i, len(s.tasks))
	}
	return s.tasks[i]
}

type countingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *countingNotifier) Notify(productID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, productID)
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

var errBoom = errors.New("boom")
