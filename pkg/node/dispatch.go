package node

import (
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/sigrigs/sigrig.go/pkg/adc"
	fx "github.com/sigrigs/sigrig.go/pkg/framework"
	"github.com/sigrigs/sigrig.go/pkg/mesh"
	"github.com/sigrigs/sigrig.go/pkg/wire"
)

// PacketMsg is a received mesh payload posted to the node loop by the
// transport's receive callback.
type PacketMsg struct {
	From    mesh.Addr
	Payload []byte
}

// ActuatorFunc renders an actuator command. Output only: it bears no
// state the dispatcher tracks.
type ActuatorFunc func(*wire.Actuator)

// Dispatcher decodes inbound commands and drives the node's capture
// state machine. Only packets from the configured coordinator are
// honored; anything else is ignored without an error. Runs at
// StageControl on the node loop.
type Dispatcher struct {
	Acq         *Acquirer
	Conv        adc.Converter
	Transport   mesh.Transport
	Coordinator mesh.Addr
	DeviceID    uint8
	Actuator    ActuatorFunc

	acks    uint64
	ignored uint64
}

// AddToLoop implements framework.LoopAdder.
func (d *Dispatcher) AddToLoop(l *fx.Loop) {
	l.AddController(fx.StageControl, d)
}

// Control implements framework.Controller.
func (d *Dispatcher) Control(cc fx.ControlContext) error {
	cc.ProcessMessages(func(msg fx.Message) bool {
		pm, ok := msg.(*PacketMsg)
		if !ok {
			return false
		}
		d.handle(pm)
		return true
	})
	return nil
}

func (d *Dispatcher) handle(pm *PacketMsg) {
	if pm.From != d.Coordinator {
		atomic.AddUint64(&d.ignored, 1)
		return
	}
	pkt, err := wire.Decode(pm.Payload)
	if err != nil {
		atomic.AddUint64(&d.ignored, 1)
		return
	}
	switch p := pkt.(type) {
	case *wire.Command:
		if p.DeviceID != 0 && p.DeviceID != d.DeviceID {
			return
		}
		d.command(p.Kind)
	case *wire.Actuator:
		if d.Actuator != nil {
			d.Actuator(p)
		}
	default:
		// Telemetry and acks are coordinator-bound; a node drops them.
		atomic.AddUint64(&d.ignored, 1)
	}
}

func (d *Dispatcher) command(kind byte) {
	switch kind {
	case wire.KindStart:
		if err := d.Conv.Configure(adc.ModeContinuous); err != nil {
			glog.Warningf("converter continuous mode failed: %v", err)
			return
		}
		d.Acq.arm()
		glog.V(1).Info("capture started")
	case wire.KindStop:
		// Reconfigure even when already idle; the stop command owns
		// the converter's low-power state.
		if err := d.Conv.Configure(adc.ModeSingleShot); err != nil {
			glog.Warningf("converter single-shot mode failed: %v", err)
		}
		d.Acq.disarm()
		glog.V(1).Info("capture stopped")
	case wire.KindCheck, wire.KindAck:
		d.sendAck()
	}
}

func (d *Dispatcher) sendAck() {
	ack := wire.Ack{DeviceID: d.DeviceID, Status: 1}
	if err := d.Transport.Send(d.Coordinator, ack.Encode()); err != nil {
		glog.V(1).Infof("ack send failed: %v", err)
		return
	}
	atomic.AddUint64(&d.acks, 1)
}

// Acks returns the number of acknowledgment packets sent.
func (d *Dispatcher) Acks() uint64 {
	return atomic.LoadUint64(&d.acks)
}
