// Package mesh abstracts the wireless datagram link between nodes.
// Delivery is best-effort, connectionless and unordered; payloads are
// never fragmented.
package mesh

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/denisbrodbeck/machineid"
)

// Addr is a 6-byte link identity, formatted like a MAC address.
type Addr [6]byte

// Broadcast addresses every reachable node.
var Broadcast = Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseAddr parses "aa:bb:cc:dd:ee:ff".
func ParseAddr(s string) (Addr, error) {
	var a Addr
	parts := strings.Split(s, ":")
	if len(parts) != len(a) {
		return a, fmt.Errorf("invalid link address %q", s)
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return Addr{}, fmt.Errorf("invalid link address %q", s)
		}
		a[i] = b[0]
	}
	return a, nil
}

// String implements fmt.Stringer.
func (a Addr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero indicates an unset address.
func (a Addr) IsZero() bool {
	return a == Addr{}
}

// DeriveAddr derives a stable link address from an arbitrary seed
// string. The locally-administered bit is set and the multicast bit is
// cleared so derived addresses never collide with Broadcast.
func DeriveAddr(seed string) Addr {
	h := fnv.New64a()
	h.Write([]byte(seed))
	sum := h.Sum(nil)
	var a Addr
	copy(a[:], sum[:len(a)])
	a[0] = a[0]&0xfc | 0x02
	return a
}

// MachineAddr derives the default link address for this machine.
func MachineAddr() (Addr, error) {
	id, err := machineid.ID()
	if err != nil {
		return Addr{}, err
	}
	return DeriveAddr(id), nil
}

// RecvHandler is called for every payload received, from the
// transport's receive goroutine.
type RecvHandler func(from Addr, payload []byte)

// Transport sends and receives datagrams on the mesh. Send to
// Broadcast reaches all peers. A failed send is transient: callers drop
// the payload rather than retry inline.
type Transport interface {
	LocalAddr() Addr
	Send(to Addr, payload []byte) error
	Handle(RecvHandler)
	Close() error
}
