// Package node implements the sensor node runtime: the acquisition
// scheduler, the ring-buffer handoff and the transmission and command
// dispatch tasks, assembled on one cooperative loop.
package node

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sigrigs/sigrig.go/pkg/adc"
	fx "github.com/sigrigs/sigrig.go/pkg/framework"
	"github.com/sigrigs/sigrig.go/pkg/mesh"
	"github.com/sigrigs/sigrig.go/pkg/ring"
)

// Config carries the per-node constants fixed at startup.
type Config struct {
	DeviceID    uint8
	Coordinator mesh.Addr
	// SampleRate is the conversion rate in Hz. Dual-channel nodes
	// alternate channels, so complete records arrive at half this
	// rate.
	SampleRate int
	// Channels is 1 (pulse only) or 2 (pulse + eye).
	Channels     int
	RingCapacity int
	// IdlePoll is the loop tick while nothing is ready.
	IdlePoll time.Duration
}

// Defaults used for unset Config fields.
const (
	DefaultSampleRate = 250
	DefaultIdlePoll   = 50 * time.Millisecond
)

// Node is one sensor node's owned state and tasks.
type Node struct {
	cfg       Config
	transport mesh.Transport
	loop      *fx.Loop
	ring      *ring.Buffer
	timer     *SampleTimer
	acq       *Acquirer
	tx        *Transmitter
	disp      *Dispatcher

	posted uint64
}

// New validates the configuration, puts the converter into its idle
// mode and wires the node's tasks. A converter that cannot be
// configured makes the node unusable and fails construction loudly.
func New(cfg Config, conv adc.Converter, transport mesh.Transport) (*Node, error) {
	if cfg.DeviceID == 0 {
		return nil, fmt.Errorf("device id must be non-zero")
	}
	if cfg.Coordinator.IsZero() {
		return nil, fmt.Errorf("coordinator address must be configured")
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	if cfg.Channels < 1 || cfg.Channels > 2 {
		return nil, fmt.Errorf("channels must be 1 or 2, got %d", cfg.Channels)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = DefaultIdlePoll
	}
	if err := conv.Configure(adc.ModeSingleShot); err != nil {
		return nil, fmt.Errorf("converter init: %w", err)
	}

	n := &Node{
		cfg:       cfg,
		transport: transport,
		loop:      fx.NewLoop(),
		ring:      ring.New(cfg.RingCapacity),
		timer:     NewSampleTimer(cfg.SampleRate),
	}
	n.acq = &Acquirer{Conv: conv, Ring: n.ring, Timer: n.timer, Channels: cfg.Channels}
	n.tx = &Transmitter{
		Ring:        n.ring,
		Transport:   transport,
		Coordinator: cfg.Coordinator,
		DeviceID:    cfg.DeviceID,
	}
	n.disp = &Dispatcher{
		Acq:         n.acq,
		Conv:        conv,
		Transport:   transport,
		Coordinator: cfg.Coordinator,
		DeviceID:    cfg.DeviceID,
	}
	n.loop.Interval = cfg.IdlePoll
	n.loop.Add(n.acq, n.disp, n.tx, n.timer)
	return n, nil
}

// SetActuator installs the output-only actuator hook.
func (n *Node) SetActuator(fn ActuatorFunc) {
	n.disp.Actuator = fn
}

// Run attaches the transport and drives the loop until the context is
// canceled.
func (n *Node) Run(ctx context.Context) error {
	n.transport.Handle(func(from mesh.Addr, payload []byte) {
		atomic.AddUint64(&n.posted, 1)
		n.loop.PostMessage(&PacketMsg{From: from, Payload: payload})
		n.loop.TriggerNext()
	})
	defer n.transport.Handle(nil)
	return n.loop.Run(ctx)
}

// Stats is a snapshot of the node's diagnostic counters.
type Stats struct {
	Capturing    bool
	ReadyTicks   uint64
	MissedTicks  uint64
	Received     uint64
	Samples      uint64
	Overflows    uint64
	ReadErrors   uint64
	Sent         uint64
	SendFailures uint64
	Acks         uint64
	Buffered     int
}

// Stats returns current diagnostic counters. Safe from any goroutine.
func (n *Node) Stats() Stats {
	return Stats{
		Capturing:    n.acq.Capturing(),
		ReadyTicks:   n.timer.Ticks(),
		MissedTicks:  n.timer.Missed(),
		Received:     atomic.LoadUint64(&n.posted),
		Samples:      atomic.LoadUint64(&n.acq.samples),
		Overflows:    atomic.LoadUint64(&n.acq.overflows),
		ReadErrors:   atomic.LoadUint64(&n.acq.readErrs),
		Sent:         n.tx.Sent(),
		SendFailures: n.tx.Failures(),
		Acks:         n.disp.Acks(),
		Buffered:     n.ring.Available(),
	}
}
