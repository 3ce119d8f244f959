package node

import (
	"sync/atomic"

	"github.com/golang/glog"

	fx "github.com/sigrigs/sigrig.go/pkg/framework"
	"github.com/sigrigs/sigrig.go/pkg/mesh"
	"github.com/sigrigs/sigrig.go/pkg/ring"
	"github.com/sigrigs/sigrig.go/pkg/wire"
)

// Transmitter drains the ring buffer and emits telemetry packets to
// the coordinator, one best-effort send per sample. A failed send is
// dropped and counted; retrying inline would back-pressure the ring
// into the acquisition context. Runs at StageEmit and yields after
// each drain, even under continuous data.
type Transmitter struct {
	Ring        *ring.Buffer
	Transport   mesh.Transport
	Coordinator mesh.Addr
	DeviceID    uint8
	// MaxPerCycle bounds sends per iteration. 0 drains fully.
	MaxPerCycle int

	sent     uint64
	failures uint64
}

// AddToLoop implements framework.LoopAdder.
func (t *Transmitter) AddToLoop(l *fx.Loop) {
	l.AddController(fx.StageEmit, t)
}

// Control implements framework.Controller.
func (t *Transmitter) Control(cc fx.ControlContext) error {
	for n := 0; t.MaxPerCycle == 0 || n < t.MaxPerCycle; n++ {
		s, ok := t.Ring.Read()
		if !ok {
			break
		}
		pkt := wire.Telemetry{
			Seq:           s.Seq,
			CaptureMillis: s.CaptureMillis,
			Values:        s.Values,
			DeviceID:      t.DeviceID,
		}
		if err := t.Transport.Send(t.Coordinator, pkt.Encode()); err != nil {
			atomic.AddUint64(&t.failures, 1)
			glog.V(1).Infof("telemetry send failed: %v", err)
			continue
		}
		atomic.AddUint64(&t.sent, 1)
	}
	return nil
}

// Sent returns the number of telemetry packets handed to the link.
func (t *Transmitter) Sent() uint64 {
	return atomic.LoadUint64(&t.sent)
}

// Failures returns the number of sends the link refused.
func (t *Transmitter) Failures() uint64 {
	return atomic.LoadUint64(&t.failures)
}
