package utils

import (
	"sync"
	"time"
)

// Task 是已调度任务的句柄，Cancel 只有第一次调用生效
type Task interface {
	// Cancel 停止任务，返回本次调用是否真正执行了取消
	Cancel() bool
	Cancelled() bool
}

// Scheduler 创建按策略重复执行的任务
type Scheduler interface {
	Repeat(strategy ReconnectStrategy, fn func()) Task
}

// TimerScheduler 基于 time.Timer 的调度器，fn 在同一个 goroutine 中依次执行。
// strategy 只由该任务的 goroutine 使用，调用方不应再修改它
type TimerScheduler struct{}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

func (s *TimerScheduler) Repeat(strategy ReconnectStrategy, fn func()) Task {
	t := &timerTask{stop: make(chan struct{})}
	go t.loop(strategy, fn)
	return t
}

type timerTask struct {
	once sync.Once
	stop chan struct{}
}

func (t *timerTask) loop(strategy ReconnectStrategy, fn func()) {
	for {
		if t.Cancelled() {
			return
		}
		timer := time.NewTimer(strategy.NextDelay())
		select {
		case <-t.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		// 取消与到期可能同时发生
		if t.Cancelled() {
			return
		}
		fn()
	}
}

func (t *timerTask) Cancel() bool {
	cancelled := false
	t.once.Do(func() {
		close(t.stop)
		cancelled = true
	})
	return cancelled
}

func (t *timerTask) Cancelled() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}
