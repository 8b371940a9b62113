// Copyright 2025 James Ross
package queue

import (
	"sync/atomic"
	"time"
)

// Clock supplies the epoch-millisecond timestamps the scripts use for
// scheduling and rate-window bucketing. Tests substitute a fixed or
// manually-advanced implementation; production uses SystemClock.
type Clock interface {
	NowMs() int64
}

// SystemClock reads the wall clock in epoch milliseconds and never returns a
// value lower than one it returned earlier in the same process, so a
// backward wall-clock step cannot move scores backwards.
type SystemClock struct{}

var lastSystemMs atomic.Int64

func (SystemClock) NowMs() int64 {
	now := time.Now().UnixMilli()
	for {
		last := lastSystemMs.Load()
		if now <= last {
			return last
		}
		if lastSystemMs.CompareAndSwap(last, now) {
			return now
		}
	}
}

// FixedClock is a test Clock that returns a settable value.
type FixedClock struct {
	Ms int64
}

func (c *FixedClock) NowMs() int64 { return c.Ms }

func (c *FixedClock) Advance(d time.Duration) {
	c.Ms += d.Milliseconds()
}
