package coord

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/sigrigs/sigrig.go/pkg/framework"
	"github.com/sigrigs/sigrig.go/pkg/host"
	"github.com/sigrigs/sigrig.go/pkg/mesh"
	"github.com/sigrigs/sigrig.go/pkg/wire"
)

const (
	// DefaultCheckWindow is how long a connection check waits for acks
	// before reporting. Nodes answer in single-digit milliseconds on a
	// healthy mesh; the window absorbs broker round trips.
	DefaultCheckWindow = 500 * time.Millisecond
	// DefaultSendSpacing is the pause between per-peer sends during a
	// fan-out, to avoid bursting the radio link.
	DefaultSendSpacing = 10 * time.Millisecond

	// DefaultIdent is the line sent in reply to an ident request.
	DefaultIdent = "Sigrig Coordinator"
)

// Options tune a Coordinator. An empty Ident and a zero CheckWindow
// take the defaults above; a SendSpacing of zero disables spacing.
type Options struct {
	Ident       string
	CheckWindow time.Duration
	SendSpacing time.Duration
}

// Coordinator drives the rig from the mesh side of the host link: it
// fans host commands out to the peers, collects connection-check acks
// into a report, and relays validated telemetry to the host verbatim.
type Coordinator struct {
	transport mesh.Transport
	registry  *Registry
	hostLink  io.ReadWriter

	ident       string
	checkWindow time.Duration
	sendSpacing time.Duration

	hostMu sync.Mutex

	relaying     uint32
	relayed      uint64
	discarded    uint64
	acks         uint64
	sendFailures uint64
}

// New wires a coordinator to its transport, peer table and host link.
func New(t mesh.Transport, reg *Registry, hostLink io.ReadWriter, opts Options) *Coordinator {
	c := &Coordinator{
		transport:   t,
		registry:    reg,
		hostLink:    hostLink,
		ident:       opts.Ident,
		checkWindow: opts.CheckWindow,
		sendSpacing: opts.SendSpacing,
	}
	if c.ident == "" {
		c.ident = DefaultIdent
	}
	if c.checkWindow <= 0 {
		c.checkWindow = DefaultCheckWindow
	}
	if c.sendSpacing < 0 {
		c.sendSpacing = DefaultSendSpacing
	}
	return c
}

// Run installs the receive handler and consumes host commands until the
// context is canceled or the host link closes.
func (c *Coordinator) Run(ctx context.Context) error {
	c.transport.Handle(c.handleRecv)
	defer c.transport.Handle(nil)
	glog.Infof("coordinator up, %d peers", c.registry.Len())
	if closer, ok := c.hostLink.(io.Closer); ok {
		return framework.RunWithCloser(ctx, closer, c.readHost)
	}
	return framework.RunWithContext(ctx, nil, c.readHost)
}

// StartCapture enables the telemetry relay and tells every peer to
// start sampling. The relay opens first so the earliest samples are
// not dropped on the floor.
func (c *Coordinator) StartCapture() {
	atomic.StoreUint32(&c.relaying, 1)
	glog.Info("capture start")
	c.broadcastCommand(wire.KindStart)
}

// StopCapture tells every peer to stop sampling, then closes the
// relay. Samples still draining out of node buffers pass through
// until the stop lands.
func (c *Coordinator) StopCapture() {
	glog.Info("capture stop")
	c.broadcastCommand(wire.KindStop)
	atomic.StoreUint32(&c.relaying, 0)
}

// CheckConnections runs one check round: clear the table, ask every
// peer to ack, wait a fixed window, then report what answered. The
// report goes to the host and is also returned for local callers.
func (c *Coordinator) CheckConnections() []host.ConnStatus {
	c.registry.ResetConnected()
	c.broadcastCommand(wire.KindCheck)
	time.Sleep(c.checkWindow)
	statuses := c.registry.Statuses()
	c.writeHost(host.EncodeConnReport(statuses))
	for _, s := range statuses {
		if !s.Connected {
			glog.Warningf("device %d did not answer connection check", s.DeviceID)
		}
	}
	return statuses
}

// SendCommand sends a control command to one peer by device id.
func (c *Coordinator) SendCommand(deviceID uint8, kind byte) error {
	p, ok := c.registry.ByDeviceID(deviceID)
	if !ok {
		return errors.New("unknown device id")
	}
	return c.send(p.Addr, &wire.Command{Kind: kind, DeviceID: p.DeviceID})
}

// BroadcastActuator fans an actuator command out to every peer. Peers
// without the matching hardware ignore it.
func (c *Coordinator) BroadcastActuator(kind byte, data [3]byte) {
	pkt := &wire.Actuator{Kind: kind, Data: data}
	for i, p := range c.registry.Snapshot() {
		if i > 0 {
			time.Sleep(c.sendSpacing)
		}
		c.send(p.Addr, pkt)
	}
}

// Relaying reports whether telemetry is currently forwarded to the
// host.
func (c *Coordinator) Relaying() bool {
	return atomic.LoadUint32(&c.relaying) != 0
}

// Stats is a snapshot of coordinator counters.
type Stats struct {
	Relaying     bool
	Relayed      uint64
	Discarded    uint64
	Acks         uint64
	SendFailures uint64
}

// Stats returns current counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Relaying:     c.Relaying(),
		Relayed:      atomic.LoadUint64(&c.relayed),
		Discarded:    atomic.LoadUint64(&c.discarded),
		Acks:         atomic.LoadUint64(&c.acks),
		SendFailures: atomic.LoadUint64(&c.sendFailures),
	}
}

func (c *Coordinator) broadcastCommand(kind byte) {
	for i, p := range c.registry.Snapshot() {
		if i > 0 {
			time.Sleep(c.sendSpacing)
		}
		c.send(p.Addr, &wire.Command{Kind: kind, DeviceID: p.DeviceID})
	}
}

func (c *Coordinator) send(to mesh.Addr, pkt wire.Packet) error {
	if err := c.transport.Send(to, pkt.Encode()); err != nil {
		atomic.AddUint64(&c.sendFailures, 1)
		glog.Warningf("send to %s failed: %v", to, err)
		return err
	}
	return nil
}

// handleRecv is the transport receive callback. Acks update the peer
// table; telemetry is forwarded verbatim while the relay is open;
// everything else is discarded.
func (c *Coordinator) handleRecv(from mesh.Addr, payload []byte) {
	pkt, err := wire.Decode(payload)
	if err != nil {
		atomic.AddUint64(&c.discarded, 1)
		return
	}
	switch p := pkt.(type) {
	case *wire.Telemetry:
		if atomic.LoadUint32(&c.relaying) == 0 {
			atomic.AddUint64(&c.discarded, 1)
			return
		}
		c.writeHost(payload)
		atomic.AddUint64(&c.relayed, 1)
	case *wire.Ack:
		if p.Status != 0 && c.registry.MarkConnected(from) {
			atomic.AddUint64(&c.acks, 1)
			glog.V(1).Infof("device %d at %s acked", p.DeviceID, from)
		} else {
			atomic.AddUint64(&c.discarded, 1)
		}
	default:
		// Commands only ever originate here; one echoed back by a
		// broadcast transport is not ours to act on.
		atomic.AddUint64(&c.discarded, 1)
	}
}

func (c *Coordinator) readHost() error {
	br := bufio.NewReader(c.hostLink)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := c.hostCommand(br, b); err != nil {
			return err
		}
	}
}

// hostCommand executes one host command. Start, stop and check are
// single bytes; ident and actuator commands carry a fixed payload.
func (c *Coordinator) hostCommand(br *bufio.Reader, b byte) error {
	switch upperByte(b) {
	case host.CmdStart:
		c.StartCapture()
	case host.CmdStop:
		c.StopCapture()
	case host.CmdCheck:
		c.CheckConnections()
	case host.CmdIdent:
		if _, err := c.readPayload(br); err != nil {
			return err
		}
		c.writeHost(append([]byte(c.ident), '\n'))
	case wire.KindColor, wire.KindLight, wire.KindTest, wire.KindTone:
		data, err := c.readPayload(br)
		if err != nil {
			return err
		}
		c.BroadcastActuator(upperByte(b), data)
	default:
		// Unknown bytes, including frame padding, are skipped.
		glog.V(3).Infof("ignoring host byte 0x%02x", b)
	}
	return nil
}

// readPayload reads a command frame's fixed payload. A link that dies
// mid-frame yields io.ErrUnexpectedEOF; acting on a zero-padded
// partial frame would broadcast a command nobody sent.
func (c *Coordinator) readPayload(br *bufio.Reader) ([3]byte, error) {
	var data [host.CmdPayloadLen]byte
	if _, err := io.ReadFull(br, data[:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return data, err
	}
	return data, nil
}

func (c *Coordinator) writeHost(b []byte) {
	c.hostMu.Lock()
	defer c.hostMu.Unlock()
	if _, err := c.hostLink.Write(b); err != nil {
		glog.Warningf("host write failed: %v", err)
	}
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
