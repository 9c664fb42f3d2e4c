package utils

import (
	"fmt"
	"time"
)

const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

type ReconnectStrategy interface {
	NextDelay() time.Duration
	Reset()
}

// FixedInterval 每次返回相同的等待时间
type FixedInterval struct {
	delay time.Duration
}

func NewFixedInterval(delay time.Duration) *FixedInterval {
	return &FixedInterval{delay: delay}
}

func (f *FixedInterval) NextDelay() time.Duration { return f.delay }

func (f *FixedInterval) Reset() {}

type ExponentialBackoff struct {
	initialDelay time.Duration
	currentDelay time.Duration
	maxDelay     time.Duration
}

func NewExponentialBackoff(initial, max time.Duration) *ExponentialBackoff {
	if initial <= 0 {
		initial = 1 * time.Second
	}
	if max < initial {
		max = 30 * time.Second
	}
	return &ExponentialBackoff{
		initialDelay: initial,
		currentDelay: initial,
		maxDelay:     max,
	}
}

func (e *ExponentialBackoff) NextDelay() time.Duration {
	delay := e.currentDelay
	e.currentDelay *= 2
	if e.currentDelay > e.maxDelay {
		e.currentDelay = e.maxDelay
	}
	return delay
}

func (e *ExponentialBackoff) Reset() {
	e.currentDelay = e.initialDelay
}

// NewStrategy 按名称创建重连策略，空名称视为 fixed
func NewStrategy(name string, delay, maxDelay time.Duration) (ReconnectStrategy, error) {
	switch name {
	case "", StrategyFixed:
		return NewFixedInterval(delay), nil
	case StrategyExponential:
		return NewExponentialBackoff(delay, maxDelay), nil
	default:
		return nil, fmt.Errorf("unknown retry strategy: %s", name)
	}
}
