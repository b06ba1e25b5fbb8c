package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunAtStartFiresImmediately(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunAtStart: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var fired atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		fired.Add(1)
		cancel()
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
	if fired.Load() != 1 {
		t.Fatalf("启动时应立即触发一次, 实际 %d", fired.Load())
	}
}

func TestRunWithoutRunAtStartWaitsForInterval(t *testing.T) {
	s := New(Options{Interval: 30 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var fired atomic.Int32
	_ = s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		fired.Add(1)
		return nil
	})

	if fired.Load() != 0 {
		t.Fatalf("第一个周期未到不应触发, 实际 %d", fired.Load())
	}
}

func TestTickErrorDoesNotStopLoop(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var fired atomic.Int32
	_ = s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		if fired.Add(1) >= 2 {
			cancel()
		}
		return errors.New("cycle failed")
	})

	if fired.Load() < 2 {
		t.Fatalf("tick 失败后循环应继续, 实际触发 %d 次", fired.Load())
	}
}

func TestSlowTickOverlapsNextFiring(t *testing.T) {
	s := New(Options{Interval: 20 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var inflight, maxSeen atomic.Int32
	_ = s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			prev := maxSeen.Load()
			if n <= prev || maxSeen.CompareAndSwap(prev, n) {
				break
			}
		}
		time.Sleep(70 * time.Millisecond)
		return nil
	})

	// Firings are independent; a tick slower than the cadence must run
	// alongside the next one rather than delaying it.
	if maxSeen.Load() < 2 {
		t.Fatalf("慢 tick 应与下一次触发并行, 最大并发仅 %d", maxSeen.Load())
	}
}

func TestNewPanicsOnInvalidInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("非法 interval 应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
