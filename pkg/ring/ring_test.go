package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFOBelowCapacity(t *testing.T) {
	b := New(8)
	require.Equal(t, 8, b.Cap())

	for i := 0; i < 5; i++ {
		require.False(t, b.Write(int16(i), int16(-i), uint32(i*10)))
	}
	require.Equal(t, 5, b.Available())

	for i := 0; i < 5; i++ {
		s, ok := b.Read()
		require.True(t, ok)
		require.Equal(t, uint32(i), s.Seq)
		require.Equal(t, uint32(i*10), s.CaptureMillis)
		require.Equal(t, [2]int16{int16(i), int16(-i)}, s.Values)
	}
	require.Equal(t, 0, b.Available())
	_, ok := b.Read()
	require.False(t, ok)
}

func TestOverflowDropsOldest(t *testing.T) {
	const capacity, writes = 4, 10
	b := New(capacity)

	for i := 0; i < writes; i++ {
		overflow := b.Write(int16(i), 0, uint32(i))
		require.Equal(t, i >= capacity, overflow, "write %d", i)
	}
	require.Equal(t, capacity, b.Available())

	// A full drain yields exactly the last C writes in write order
	// with strictly increasing sequence ids.
	for i := writes - capacity; i < writes; i++ {
		s, ok := b.Read()
		require.True(t, ok)
		require.Equal(t, uint32(i), s.Seq)
		require.Equal(t, int16(i), s.Values[0])
	}
	_, ok := b.Read()
	require.False(t, ok)
}

func TestInterleavedNoLoss(t *testing.T) {
	b := New(4)
	var got []uint32
	for i := 0; i < 100; i++ {
		require.False(t, b.Write(int16(i), 0, 0))
		if i%2 == 1 {
			for {
				s, ok := b.Read()
				if !ok {
					break
				}
				got = append(got, s.Seq)
			}
		}
	}
	for {
		s, ok := b.Read()
		if !ok {
			break
		}
		got = append(got, s.Seq)
	}
	require.Len(t, got, 100)
	for i, seq := range got {
		require.Equal(t, uint32(i), seq)
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const writes = 20000
	b := New(64)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			// Values are derived from the write index so the reader
			// can detect a torn record.
			b.Write(int16(i&0x7fff), int16(^(i & 0x7fff)), uint32(i))
		}
	}()

	var lastSeq int64 = -1
	go func() {
		defer wg.Done()
		reads := 0
		for reads < writes/2 {
			n := b.Available()
			require.GreaterOrEqual(t, n, 0)
			require.LessOrEqual(t, n, b.Cap())
			s, ok := b.Read()
			if !ok {
				continue
			}
			reads++
			require.Greater(t, int64(s.Seq), lastSeq)
			lastSeq = int64(s.Seq)
			// All fields of one record must come from the same write.
			i := int(s.CaptureMillis)
			require.Equal(t, int16(i&0x7fff), s.Values[0])
			require.Equal(t, int16(^(i&0x7fff)), s.Values[1])
			require.Equal(t, uint32(i), s.Seq)
		}
	}()

	wg.Wait()
}

func TestZeroCapacityDefaults(t *testing.T) {
	b := New(0)
	require.Equal(t, DefaultCapacity, b.Cap())
}
