// Package ws exposes the coordinator's host link over a websocket, so
// a host application can attach over the network instead of a serial
// cable.
package ws

import (
	"io"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// Bridge is an io.ReadWriter host link backed by attached websocket
// clients. Writes fan out to every attached client and are dropped
// when nobody is attached, matching the best-effort posture of the
// rest of the link. Reads yield bytes sent by any client.
type Bridge struct {
	lock   sync.Mutex
	conns  map[*websocket.Conn]struct{}
	recvCh chan []byte
	buf    []byte
	closed bool
}

// NewBridge creates a Bridge.
func NewBridge() *Bridge {
	return &Bridge{
		conns:  make(map[*websocket.Conn]struct{}),
		recvCh: make(chan []byte, 64),
	}
}

// Handler returns the websocket handler to mount on an HTTP server.
func (b *Bridge) Handler() websocket.Handler {
	return websocket.Handler(b.serve)
}

func (b *Bridge) serve(conn *websocket.Conn) {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		conn.Close()
		return
	}
	b.conns[conn] = struct{}{}
	b.lock.Unlock()
	glog.Info("host client attached")

	defer func() {
		b.lock.Lock()
		delete(b.conns, conn)
		b.lock.Unlock()
		glog.Info("host client detached")
	}()

	for {
		var msg []byte
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return
		}
		b.post(msg)
	}
}

// post hands a client message to the reader. The lock orders it
// against Close, which closes recvCh under the same lock.
func (b *Bridge) post(msg []byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return
	}
	select {
	case b.recvCh <- msg:
	default:
		// Host commands are tiny; a backlogged reader means the
		// coordinator is gone and dropping is fine.
	}
}

// Read implements io.Reader. It blocks until a client sends bytes.
func (b *Bridge) Read(p []byte) (int, error) {
	if len(b.buf) == 0 {
		msg, ok := <-b.recvCh
		if !ok {
			return 0, io.EOF
		}
		b.buf = msg
	}
	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

// Write implements io.Writer, fanning out to all attached clients.
func (b *Bridge) Write(p []byte) (int, error) {
	b.lock.Lock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.lock.Unlock()
	for _, conn := range conns {
		if err := websocket.Message.Send(conn, p); err != nil {
			glog.V(1).Infof("host client write failed: %v", err)
		}
	}
	return len(p), nil
}

// Close implements io.Closer: detaches all clients and unblocks Read.
func (b *Bridge) Close() error {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return nil
	}
	b.closed = true
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	close(b.recvCh)
	b.lock.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
	return nil
}
