package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigrigs/sigrig.go/pkg/adc"
	"github.com/sigrigs/sigrig.go/pkg/mesh"
	"github.com/sigrigs/sigrig.go/pkg/mesh/mem"
	"github.com/sigrigs/sigrig.go/pkg/wire"
)

type coordSide struct {
	port *mem.Port
	addr mesh.Addr

	mu        sync.Mutex
	telemetry []*wire.Telemetry
	acks      []*wire.Ack
}

func newCoordSide(bus *mem.Bus) *coordSide {
	addr := mesh.DeriveAddr("coordinator")
	c := &coordSide{port: bus.Port(addr), addr: addr}
	c.port.Handle(func(from mesh.Addr, payload []byte) {
		pkt, err := wire.Decode(payload)
		if err != nil {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		switch p := pkt.(type) {
		case *wire.Telemetry:
			c.telemetry = append(c.telemetry, p)
		case *wire.Ack:
			c.acks = append(c.acks, p)
		}
	})
	return c
}

func (c *coordSide) telemetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.telemetry)
}

func (c *coordSide) waitTelemetry(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.telemetryCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d telemetry packets, have %d", n, c.telemetryCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (c *coordSide) command(t *testing.T, nodeAddr mesh.Addr, pkt wire.Packet) {
	t.Helper()
	require.NoError(t, c.port.Send(nodeAddr, pkt.Encode()))
}

func startTestNode(t *testing.T, bus *mem.Bus, coord *coordSide) (*Node, mesh.Addr, func()) {
	t.Helper()
	addr := mesh.DeriveAddr("sensor")
	n, err := New(Config{
		DeviceID:    1,
		Coordinator: coord.addr,
		SampleRate:  500,
		Channels:    2,
		IdlePoll:    5 * time.Millisecond,
	}, adc.NewSim(adc.DefaultSimConfig()), bus.Port(addr))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Run(ctx)
	}()
	return n, addr, func() {
		cancel()
		<-done
	}
}

func TestNodeCaptureRoundTrip(t *testing.T) {
	bus := mem.NewBus()
	coord := newCoordSide(bus)
	n, addr, stop := startTestNode(t, bus, coord)
	defer stop()

	coord.command(t, addr, &wire.Command{Kind: wire.KindStart, DeviceID: 1})
	coord.waitTelemetry(t, 10)

	coord.command(t, addr, &wire.Command{Kind: wire.KindStop, DeviceID: 1})
	waitIdle(t, n)

	coord.mu.Lock()
	packets := append([]*wire.Telemetry(nil), coord.telemetry...)
	coord.mu.Unlock()

	var lastSeq int64 = -1
	var lastMillis int64 = -1
	for _, p := range packets {
		require.Equal(t, uint8(1), p.DeviceID)
		require.Greater(t, int64(p.Seq), lastSeq)
		require.GreaterOrEqual(t, int64(p.CaptureMillis), lastMillis)
		lastSeq = int64(p.Seq)
		lastMillis = int64(p.CaptureMillis)
	}
	require.Equal(t, uint32(0), packets[0].CaptureMillis)
}

func TestNodeSessionRestartResetsTimestamps(t *testing.T) {
	bus := mem.NewBus()
	coord := newCoordSide(bus)
	n, addr, stop := startTestNode(t, bus, coord)
	defer stop()

	coord.command(t, addr, &wire.Command{Kind: wire.KindStart, DeviceID: 1})
	coord.waitTelemetry(t, 5)
	coord.command(t, addr, &wire.Command{Kind: wire.KindStop, DeviceID: 1})
	waitIdle(t, n)

	// Let the first session age so a stale baseline would be obvious.
	firstSession := coord.telemetryCount()
	time.Sleep(300 * time.Millisecond)

	coord.command(t, addr, &wire.Command{Kind: wire.KindStart, DeviceID: 1})
	coord.waitTelemetry(t, firstSession+1)

	coord.mu.Lock()
	first := coord.telemetry[firstSession]
	prevSeq := coord.telemetry[firstSession-1].Seq
	coord.mu.Unlock()
	require.Less(t, first.CaptureMillis, uint32(50))
	require.Greater(t, first.Seq, prevSeq)
}

func TestNodeAcksCheck(t *testing.T) {
	bus := mem.NewBus()
	coord := newCoordSide(bus)
	_, addr, stop := startTestNode(t, bus, coord)
	defer stop()

	coord.command(t, addr, &wire.Command{Kind: wire.KindCheck, DeviceID: 1})
	deadline := time.Now().Add(5 * time.Second)
	for {
		coord.mu.Lock()
		acks := len(coord.acks)
		coord.mu.Unlock()
		if acks > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no ack received")
		}
		time.Sleep(5 * time.Millisecond)
	}
	coord.mu.Lock()
	defer coord.mu.Unlock()
	require.Equal(t, &wire.Ack{DeviceID: 1, Status: 1}, coord.acks[0])
}

func TestNodeDrainsAfterStop(t *testing.T) {
	bus := mem.NewBus()
	coord := newCoordSide(bus)
	n, addr, stop := startTestNode(t, bus, coord)
	defer stop()

	coord.command(t, addr, &wire.Command{Kind: wire.KindStart, DeviceID: 1})
	coord.waitTelemetry(t, 3)
	coord.command(t, addr, &wire.Command{Kind: wire.KindStop, DeviceID: 1})
	waitIdle(t, n)

	// Everything acquired before the stop is still transmitted; the
	// buffer is not flushed.
	require.Equal(t, 0, n.Stats().Buffered)
	stats := n.Stats()
	require.Equal(t, stats.Samples, stats.Sent+stats.SendFailures)
	// Both commands came over the transport.
	require.GreaterOrEqual(t, stats.Received, uint64(2))
}

func TestNodeRejectsBadConfig(t *testing.T) {
	bus := mem.NewBus()
	conv := adc.NewSim(adc.DefaultSimConfig())
	coord := mesh.DeriveAddr("coordinator")

	_, err := New(Config{Coordinator: coord}, conv, bus.Port(mesh.DeriveAddr("x1")))
	require.Error(t, err) // zero device id

	_, err = New(Config{DeviceID: 1}, conv, bus.Port(mesh.DeriveAddr("x2")))
	require.Error(t, err) // no coordinator

	_, err = New(Config{DeviceID: 1, Coordinator: coord, Channels: 3}, conv, bus.Port(mesh.DeriveAddr("x3")))
	require.Error(t, err)

	bad := adc.NewScripted(nil, nil)
	bad.ConfigureErr = adc.ErrBadChannel
	_, err = New(Config{DeviceID: 1, Coordinator: coord}, bad, bus.Port(mesh.DeriveAddr("x4")))
	require.Error(t, err) // converter init failure is fatal
}

// waitIdle waits until the node observed the stop command and drained
// its buffer.
func waitIdle(t *testing.T, n *Node) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s := n.Stats()
		if !s.Capturing && s.Buffered == 0 {
			// One more settle pass for in-flight deliveries.
			time.Sleep(20 * time.Millisecond)
			s = n.Stats()
			if !s.Capturing && s.Buffered == 0 {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("node never went idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
