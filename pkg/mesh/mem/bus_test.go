package mem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigrigs/sigrig.go/pkg/mesh"
)

type recorder struct {
	mu   sync.Mutex
	got  [][]byte
	from []mesh.Addr
	ch   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 16)}
}

func (r *recorder) handle(from mesh.Addr, payload []byte) {
	r.mu.Lock()
	r.got = append(r.got, payload)
	r.from = append(r.from, from)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	for {
		r.mu.Lock()
		count := len(r.got)
		r.mu.Unlock()
		if count >= n {
			return
		}
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d payloads, have %d", n, count)
		}
	}
}

func TestUnicast(t *testing.T) {
	bus := NewBus()
	a := bus.Port(mesh.DeriveAddr("a"))
	b := bus.Port(mesh.DeriveAddr("b"))
	c := bus.Port(mesh.DeriveAddr("c"))

	rb, rc := newRecorder(), newRecorder()
	b.Handle(rb.handle)
	c.Handle(rc.handle)

	require.NoError(t, a.Send(b.LocalAddr(), []byte{1, 2}))
	rb.wait(t, 1)
	require.Equal(t, []byte{1, 2}, rb.got[0])
	require.Equal(t, a.LocalAddr(), rb.from[0])
	require.Empty(t, rc.got)
}

func TestBroadcast(t *testing.T) {
	bus := NewBus()
	a := bus.Port(mesh.DeriveAddr("a"))
	b := bus.Port(mesh.DeriveAddr("b"))
	c := bus.Port(mesh.DeriveAddr("c"))

	rb, rc := newRecorder(), newRecorder()
	b.Handle(rb.handle)
	c.Handle(rc.handle)

	require.NoError(t, a.Send(mesh.Broadcast, []byte{9}))
	rb.wait(t, 1)
	rc.wait(t, 1)
}

func TestDrop(t *testing.T) {
	bus := NewBus()
	a := bus.Port(mesh.DeriveAddr("a"))
	b := bus.Port(mesh.DeriveAddr("b"))
	bus.SetDrop(func(from, to mesh.Addr, payload []byte) bool {
		return payload[0]%2 == 0 // lose even payloads
	})

	rb := newRecorder()
	b.Handle(rb.handle)
	for i := byte(0); i < 10; i++ {
		require.NoError(t, a.Send(b.LocalAddr(), []byte{i}))
	}
	rb.wait(t, 5)
	rb.mu.Lock()
	defer rb.mu.Unlock()
	require.Len(t, rb.got, 5)
	for _, p := range rb.got {
		require.Equal(t, byte(1), p[0]%2)
	}
}

func TestClosedPort(t *testing.T) {
	bus := NewBus()
	a := bus.Port(mesh.DeriveAddr("a"))
	require.NoError(t, a.Close())
	require.Equal(t, ErrClosed, a.Send(mesh.Broadcast, nil))
}
