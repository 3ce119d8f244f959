package node

import (
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/sigrigs/sigrig.go/pkg/adc"
	fx "github.com/sigrigs/sigrig.go/pkg/framework"
	"github.com/sigrigs/sigrig.go/pkg/ring"
)

// Acquirer reads the converter when a conversion is ready and pushes
// timestamped samples into the ring buffer. It runs at StageSense on
// the node loop; all of its mutable state is owned by that goroutine
// except the stats counters.
type Acquirer struct {
	Conv     adc.Converter
	Ring     *ring.Buffer
	Timer    *SampleTimer
	Channels int

	capturing    uint32 // atomic, for external observation only
	channel      uint8
	baseline     time.Time
	haveBaseline bool
	pending      int16
	havePending  bool

	samples   uint64
	overflows uint64
	readErrs  uint64
}

// AddToLoop implements framework.LoopAdder.
func (a *Acquirer) AddToLoop(l *fx.Loop) {
	l.AddController(fx.StageSense, a)
}

// Control implements framework.Controller.
func (a *Acquirer) Control(cc fx.ControlContext) error {
	if atomic.LoadUint32(&a.capturing) == 0 || !a.Timer.Consume() {
		return nil
	}
	v, err := a.Conv.Read(a.channel)
	if err != nil {
		// A failed conversion is dropped like a lost packet; the
		// stalled tick counter makes a dead converter visible.
		atomic.AddUint64(&a.readErrs, 1)
		glog.V(1).Infof("conversion read failed: %v", err)
		return nil
	}
	if a.Channels < 2 {
		a.push(cc.Time(), v, 0)
		return nil
	}
	// Dual channel: alternate the multiplexer and publish only
	// complete pairs. The first half of a pair stays local.
	if a.channel == adc.ChannelPulse {
		a.pending, a.havePending = v, true
		a.channel = adc.ChannelEye
		return nil
	}
	a.channel = adc.ChannelPulse
	if !a.havePending {
		return nil
	}
	a.havePending = false
	a.push(cc.Time(), a.pending, v)
	return nil
}

func (a *Acquirer) push(now time.Time, v0, v1 int16) {
	if !a.haveBaseline {
		// Session timestamps are relative to the first sample.
		a.baseline = now
		a.haveBaseline = true
	}
	millis := uint32(now.Sub(a.baseline) / time.Millisecond)
	if a.Ring.Write(v0, v1, millis) {
		atomic.AddUint64(&a.overflows, 1)
		glog.V(1).Info("ring overflow, oldest sample dropped")
	}
	atomic.AddUint64(&a.samples, 1)
}

// arm starts a capture session. Called by the dispatcher on the loop
// goroutine.
func (a *Acquirer) arm() {
	atomic.StoreUint32(&a.capturing, 1)
	a.Timer.Arm(true)
}

// disarm stops the session and resets the per-session state so the
// next session's timestamps start near zero.
func (a *Acquirer) disarm() {
	atomic.StoreUint32(&a.capturing, 0)
	a.Timer.Arm(false)
	a.haveBaseline = false
	a.havePending = false
	a.channel = adc.ChannelPulse
}

// Capturing reports whether a capture session is active.
func (a *Acquirer) Capturing() bool {
	return atomic.LoadUint32(&a.capturing) != 0
}
