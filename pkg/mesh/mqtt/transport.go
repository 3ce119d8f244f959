package mqtt

import (
	"errors"
	"sync"

	"github.com/golang/glog"

	"github.com/sigrigs/sigrig.go/pkg/mesh"
)

// Frames on the broker carry the sender in front of the payload, since
// MQTT does not expose a peer identity.
const frameHeader = 6

const broadcastTopic = "mesh/all"

// Transport implements mesh.Transport over a Queue.
type Transport struct {
	queue *Queue
	local mesh.Addr

	lock    sync.RWMutex
	handler mesh.RecvHandler
}

// NewTransport connects to the broker and subscribes the local node's
// topic plus the broadcast topic.
func NewTransport(brokerURL string, local mesh.Addr) (*Transport, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID("sigrig-" + local.String())
	}
	t := &Transport{queue: NewQueue(opts, prefix), local: local}
	token := t.queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	t.queue.Sub(topicFor(local), t.recv)
	t.queue.Sub(broadcastTopic, t.recv)
	return t, nil
}

func topicFor(a mesh.Addr) string {
	if a == mesh.Broadcast {
		return broadcastTopic
	}
	return "mesh/" + a.String()
}

// LocalAddr implements mesh.Transport.
func (t *Transport) LocalAddr() mesh.Addr {
	return t.local
}

// Send implements mesh.Transport.
func (t *Transport) Send(to mesh.Addr, payload []byte) error {
	frame := make([]byte, frameHeader+len(payload))
	copy(frame, t.local[:])
	copy(frame[frameHeader:], payload)
	token := t.queue.Pub(topicFor(to), frame)
	token.Wait()
	return token.Error()
}

// Handle implements mesh.Transport.
func (t *Transport) Handle(h mesh.RecvHandler) {
	t.lock.Lock()
	t.handler = h
	t.lock.Unlock()
}

// Close implements mesh.Transport.
func (t *Transport) Close() error {
	return t.queue.Close()
}

// SplitFrame splits a broker frame into sender address and payload.
func SplitFrame(frame []byte) (mesh.Addr, []byte, error) {
	var from mesh.Addr
	if len(frame) < frameHeader {
		return from, nil, errors.New("short mesh frame")
	}
	copy(from[:], frame[:frameHeader])
	return from, frame[frameHeader:], nil
}

func (t *Transport) recv(_ string, frame []byte) {
	from, payload, err := SplitFrame(frame)
	if err != nil {
		glog.V(2).Info("short mesh frame dropped")
		return
	}
	if from == t.local {
		// Own broadcast echoed back by the broker.
		return
	}
	t.lock.RLock()
	h := t.handler
	t.lock.RUnlock()
	if h != nil {
		h(from, payload)
	}
}
