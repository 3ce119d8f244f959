// Package mem provides an in-process mesh for tests: every port sees
// every other port on the same Bus, with an optional drop hook to model
// the lossy radio.
package mem

import (
	"errors"
	"sync"

	"github.com/sigrigs/sigrig.go/pkg/mesh"
)

// DropFunc decides whether a datagram is lost in transit.
type DropFunc func(from, to mesh.Addr, payload []byte) bool

// Bus connects Ports.
type Bus struct {
	lock  sync.RWMutex
	ports map[mesh.Addr]*Port
	drop  DropFunc
}

// NewBus creates a Bus.
func NewBus() *Bus {
	return &Bus{ports: make(map[mesh.Addr]*Port)}
}

// SetDrop installs the loss model. nil delivers everything.
func (b *Bus) SetDrop(drop DropFunc) {
	b.lock.Lock()
	b.drop = drop
	b.lock.Unlock()
}

// Port creates (or returns) the transport bound to addr.
func (b *Bus) Port(addr mesh.Addr) *Port {
	b.lock.Lock()
	defer b.lock.Unlock()
	if p, ok := b.ports[addr]; ok {
		return p
	}
	p := &Port{
		bus:  b,
		addr: addr,
		ch:   make(chan delivery, 256),
		quit: make(chan struct{}),
	}
	go p.dispatch()
	b.ports[addr] = p
	return p
}

func (b *Bus) deliver(from, to mesh.Addr, payload []byte) {
	b.lock.RLock()
	drop := b.drop
	var dests []*Port
	if to == mesh.Broadcast {
		for addr, p := range b.ports {
			if addr != from {
				dests = append(dests, p)
			}
		}
	} else if p, ok := b.ports[to]; ok {
		dests = append(dests, p)
	}
	b.lock.RUnlock()

	for _, p := range dests {
		if drop != nil && drop(from, p.addr, payload) {
			continue
		}
		// Copy so receivers cannot observe later sender mutations.
		cp := make([]byte, len(payload))
		copy(cp, payload)
		select {
		case p.ch <- delivery{from: from, payload: cp}:
		default:
			// Receiver backlogged; the link is lossy.
		}
	}
}

type delivery struct {
	from    mesh.Addr
	payload []byte
}

// Port implements mesh.Transport on a Bus. Payloads from one sender
// are delivered in send order on a single receive goroutine.
type Port struct {
	bus  *Bus
	addr mesh.Addr
	ch   chan delivery
	quit chan struct{}
	once sync.Once

	lock    sync.RWMutex
	handler mesh.RecvHandler
	closed  bool
}

// ErrClosed indicates a send on a closed port.
var ErrClosed = errors.New("mesh port closed")

// LocalAddr implements mesh.Transport.
func (p *Port) LocalAddr() mesh.Addr {
	return p.addr
}

// Send implements mesh.Transport.
func (p *Port) Send(to mesh.Addr, payload []byte) error {
	p.lock.RLock()
	closed := p.closed
	p.lock.RUnlock()
	if closed {
		return ErrClosed
	}
	p.bus.deliver(p.addr, to, payload)
	return nil
}

// Handle implements mesh.Transport.
func (p *Port) Handle(h mesh.RecvHandler) {
	p.lock.Lock()
	p.handler = h
	p.lock.Unlock()
}

// Close implements mesh.Transport.
func (p *Port) Close() error {
	p.lock.Lock()
	p.closed = true
	p.lock.Unlock()
	p.once.Do(func() { close(p.quit) })
	return nil
}

func (p *Port) dispatch() {
	for {
		select {
		case d := <-p.ch:
			p.lock.RLock()
			h := p.handler
			p.lock.RUnlock()
			if h != nil {
				h(d.from, d.payload)
			}
		case <-p.quit:
			return
		}
	}
}
