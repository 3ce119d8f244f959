// Package ring provides the bounded sample queue between the
// acquisition context and the transmission context.
package ring

import "sync"

// Sample is one timestamped acquisition record. Seq is assigned by the
// buffer at write time and increases monotonically per node.
type Sample struct {
	Seq           uint32
	CaptureMillis uint32
	Values        [2]int16
}

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 512

// Buffer is a fixed-capacity circular queue with overwrite-on-full
// semantics. Exactly one writer context and one reader context may use
// it concurrently; every index/counter mutation happens under the same
// lock, held only for the bookkeeping itself. The writer never blocks
// and never grows memory: when full, the oldest unread sample is
// dropped and the write reports overflow.
type Buffer struct {
	mu      sync.Mutex
	buf     []Sample
	head    int
	tail    int
	count   int
	nextSeq uint32
}

// New creates a Buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{buf: make([]Sample, capacity)}
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Write appends a sample, assigning the next sequence id. It returns
// true if an unread sample was evicted to make room.
func (b *Buffer) Write(v0, v1 int16, captureMillis uint32) (overflow bool) {
	b.mu.Lock()
	b.buf[b.head] = Sample{
		Seq:           b.nextSeq,
		CaptureMillis: captureMillis,
		Values:        [2]int16{v0, v1},
	}
	b.head = (b.head + 1) % len(b.buf)
	b.nextSeq++
	if b.count < len(b.buf) {
		b.count++
	} else {
		b.tail = (b.tail + 1) % len(b.buf)
		overflow = true
	}
	b.mu.Unlock()
	return
}

// Read pops the oldest unread sample. ok is false when the buffer is
// empty.
func (b *Buffer) Read() (s Sample, ok bool) {
	b.mu.Lock()
	if b.count > 0 {
		s = b.buf[b.tail]
		b.tail = (b.tail + 1) % len(b.buf)
		b.count--
		ok = true
	}
	b.mu.Unlock()
	return
}

// Available returns the number of unread samples.
func (b *Buffer) Available() int {
	b.mu.Lock()
	n := b.count
	b.mu.Unlock()
	return n
}
