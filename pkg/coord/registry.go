// Package coord implements the coordinating node: the static peer
// registry, command fan-out, the connection-check handshake and the
// telemetry relay onto the host link.
package coord

import (
	"fmt"
	"sync"

	"github.com/sigrigs/sigrig.go/pkg/host"
	"github.com/sigrigs/sigrig.go/pkg/mesh"
)

// Peer describes one remote node. The set of peers is fixed at
// startup; only Connected changes, and only through a connection
// check.
type Peer struct {
	Name     string
	Addr     mesh.Addr
	DeviceID uint8
	// Required marks peers the rig cannot capture without, surfaced
	// to the host through the connectivity report.
	Required  bool
	Connected bool
}

// Registry is the static peer table with per-peer connectivity state.
// The receive callback and the host command loop touch it from
// different goroutines.
type Registry struct {
	mu    sync.Mutex
	peers []Peer
}

// NewRegistry builds a registry, rejecting duplicate identities.
func NewRegistry(peers []Peer) (*Registry, error) {
	byID := make(map[uint8]struct{}, len(peers))
	byAddr := make(map[mesh.Addr]struct{}, len(peers))
	for _, p := range peers {
		if p.DeviceID == 0 {
			return nil, fmt.Errorf("peer %q: device id must be non-zero", p.Name)
		}
		if p.Addr.IsZero() {
			return nil, fmt.Errorf("peer %q: link address must be set", p.Name)
		}
		if _, dup := byID[p.DeviceID]; dup {
			return nil, fmt.Errorf("duplicate device id %d", p.DeviceID)
		}
		if _, dup := byAddr[p.Addr]; dup {
			return nil, fmt.Errorf("duplicate link address %s", p.Addr)
		}
		byID[p.DeviceID] = struct{}{}
		byAddr[p.Addr] = struct{}{}
	}
	reg := &Registry{peers: make([]Peer, len(peers))}
	copy(reg.peers, peers)
	return reg, nil
}

// Len returns the number of configured peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Snapshot returns a copy of the peer table.
func (r *Registry) Snapshot() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Peer, len(r.peers))
	copy(out, r.peers)
	return out
}

// ByDeviceID finds a peer.
func (r *Registry) ByDeviceID(id uint8) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.peers {
		if p.DeviceID == id {
			return p, true
		}
	}
	return Peer{}, false
}

// ResetConnected clears every peer's connectivity flag at the start of
// a check round.
func (r *Registry) ResetConnected() {
	r.mu.Lock()
	for i := range r.peers {
		r.peers[i].Connected = false
	}
	r.mu.Unlock()
}

// MarkConnected records an acknowledgment from the given link address.
// It reports whether the address belongs to a configured peer.
func (r *Registry) MarkConnected(addr mesh.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.peers {
		if r.peers[i].Addr == addr {
			r.peers[i].Connected = true
			return true
		}
	}
	return false
}

// Statuses returns the connectivity table in report order.
func (r *Registry) Statuses() []host.ConnStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]host.ConnStatus, len(r.peers))
	for i, p := range r.peers {
		out[i] = host.ConnStatus{DeviceID: p.DeviceID, Connected: p.Connected}
	}
	return out
}
