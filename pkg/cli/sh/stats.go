package sh

import (
	"sync"

	"github.com/sigrigs/sigrig.go/pkg/wire"
)

// devStats accumulates per-device telemetry counters.
type devStats struct {
	Count      uint64
	Lost       uint64
	LastSeq    uint32
	LastMillis uint32
	LastValues [2]int16

	haveSeq bool
}

type telemetryStats struct {
	mu  sync.Mutex
	dev map[uint8]*devStats
}

func (t *telemetryStats) init() {
	t.dev = make(map[uint8]*devStats)
}

func (t *telemetryStats) reset() {
	t.mu.Lock()
	t.dev = make(map[uint8]*devStats)
	t.mu.Unlock()
}

// observe folds one telemetry packet in. Sequence gaps count as lost
// samples; the mesh is best-effort and drops are expected.
func (t *telemetryStats) observe(p *wire.Telemetry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.dev[p.DeviceID]
	if d == nil {
		d = &devStats{}
		t.dev[p.DeviceID] = d
	}
	if d.haveSeq && p.Seq > d.LastSeq+1 {
		d.Lost += uint64(p.Seq - d.LastSeq - 1)
	}
	d.Count++
	d.LastSeq = p.Seq
	d.haveSeq = true
	d.LastMillis = p.CaptureMillis
	d.LastValues = p.Values
}

// snapshot returns a copy of all device counters.
func (t *telemetryStats) snapshot() map[uint8]devStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint8]devStats, len(t.dev))
	for id, d := range t.dev {
		out[id] = *d
	}
	return out
}
