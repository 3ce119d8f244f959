package node

import (
	"context"
	"sync"
	"time"

	fx "github.com/sigrigs/sigrig.go/pkg/framework"
)

// SampleTimer stands in for the converter's conversion-ready line. It
// raises a ready flag at the configured sample rate while armed and
// wakes the loop, the way the hardware interrupt preempts the
// acquisition task. The flag and its bookkeeping are the only state
// shared with the loop, guarded by a single lock held for flag
// arithmetic only.
type SampleTimer struct {
	interval time.Duration

	mu     sync.Mutex
	armed  bool
	ready  bool
	ticks  uint64
	missed uint64
}

// NewSampleTimer creates a timer firing rate times per second.
func NewSampleTimer(rate int) *SampleTimer {
	if rate <= 0 {
		rate = 250
	}
	return &SampleTimer{interval: time.Second / time.Duration(rate)}
}

// AddToLoop implements framework.LoopAdder.
func (t *SampleTimer) AddToLoop(l *fx.Loop) {
	l.AddRunnable(t)
}

// Interval returns the conversion period.
func (t *SampleTimer) Interval() time.Duration {
	return t.interval
}

// Run implements framework.Runnable under a loop.
func (t *SampleTimer) Run(ctx context.Context) error {
	loopCtl := fx.LoopCtlFrom(ctx)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.fire() {
				loopCtl.TriggerNext()
			}
		}
	}
}

// fire raises the ready flag. It returns false while disarmed, like a
// converter whose continuous mode is off.
func (t *SampleTimer) fire() bool {
	t.mu.Lock()
	armed := t.armed
	if armed {
		if t.ready {
			t.missed++
		}
		t.ready = true
		t.ticks++
	}
	t.mu.Unlock()
	return armed
}

// Arm enables or disables the ready source.
func (t *SampleTimer) Arm(on bool) {
	t.mu.Lock()
	t.armed = on
	if !on {
		t.ready = false
	}
	t.mu.Unlock()
}

// Consume clears and returns the ready flag.
func (t *SampleTimer) Consume() bool {
	t.mu.Lock()
	ready := t.ready
	t.ready = false
	t.mu.Unlock()
	return ready
}

// Ticks returns how many ready events have fired. A capturing node
// whose count stops advancing has a dead conversion source.
func (t *SampleTimer) Ticks() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// Missed returns how many ready events were raised before the previous
// one was consumed.
func (t *SampleTimer) Missed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.missed
}
