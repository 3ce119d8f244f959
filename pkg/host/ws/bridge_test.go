package ws

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func dialBridge(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	return conn
}

func TestBridgeReadWrite(t *testing.T) {
	b := NewBridge()
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	conn := dialBridge(t, srv)
	defer conn.Close()

	require.NoError(t, websocket.Message.Send(conn, []byte{'A'}))
	buf := make([]byte, 4)
	n, err := b.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{'A'}, buf[:n])

	// The client is attached by now; a write must reach it.
	report := []byte{'!', 'C', 1, 1, 1}
	_, err = b.Write(report)
	require.NoError(t, err)
	var msg []byte
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, websocket.Message.Receive(conn, &msg))
	require.Equal(t, report, msg)

	require.NoError(t, b.Close())
	_, err = b.Read(buf)
	require.Equal(t, io.EOF, err)
}

func TestBridgeCloseDuringClientSends(t *testing.T) {
	// Clients flooding commands while the bridge shuts down must not
	// reach the read channel after it is closed.
	for round := 0; round < 20; round++ {
		b := NewBridge()
		srv := httptest.NewServer(b.Handler())

		var wg sync.WaitGroup
		conns := make([]*websocket.Conn, 8)
		for i := range conns {
			conns[i] = dialBridge(t, srv)
			wg.Add(1)
			go func(conn *websocket.Conn) {
				defer wg.Done()
				for {
					if err := websocket.Message.Send(conn, []byte{'S'}); err != nil {
						return
					}
				}
			}(conns[i])
		}

		require.NoError(t, b.Close())
		require.NoError(t, b.Close(), "Close must be idempotent")
		for _, conn := range conns {
			conn.Close()
		}
		wg.Wait()
		srv.Close()
	}
}

func TestBridgeWriteWithoutClients(t *testing.T) {
	b := NewBridge()
	n, err := b.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
