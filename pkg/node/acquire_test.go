package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigrigs/sigrig.go/pkg/adc"
	fx "github.com/sigrigs/sigrig.go/pkg/framework"
	"github.com/sigrigs/sigrig.go/pkg/ring"
)

// testCtl is a minimal ControlContext driving controllers directly.
type testCtl struct {
	now  time.Time
	msgs []fx.Message
}

func (c *testCtl) Context() context.Context { return context.Background() }
func (c *testCtl) Time() time.Time          { return c.now }
func (c *testCtl) Stage() fx.Stage          { return fx.StageSense }
func (c *testCtl) PostMessage(m fx.Message) { c.msgs = append(c.msgs, m) }
func (c *testCtl) TriggerNext()             {}

func (c *testCtl) ProcessMessages(proc func(fx.Message) bool) {
	msgs := c.msgs
	c.msgs = nil
	for _, m := range msgs {
		if !proc(m) {
			c.msgs = append(c.msgs, m)
		}
	}
}

func newAcquirer(conv adc.Converter, channels int) (*Acquirer, *ring.Buffer) {
	buf := ring.New(32)
	a := &Acquirer{
		Conv:     conv,
		Ring:     buf,
		Timer:    NewSampleTimer(250),
		Channels: channels,
	}
	return a, buf
}

// tick simulates one conversion-ready event followed by one scheduler
// pass.
func tick(t *testing.T, a *Acquirer, cc *testCtl) {
	t.Helper()
	a.Timer.fire()
	require.NoError(t, a.Control(cc))
}

func TestAcquirerIdleWithoutCapture(t *testing.T) {
	a, buf := newAcquirer(adc.NewScripted([]int16{1}, nil), 1)
	cc := &testCtl{now: time.Now()}
	a.Timer.Arm(true) // ready events alone must not produce samples
	tick(t, a, cc)
	require.Equal(t, 0, buf.Available())
}

func TestAcquirerSingleChannel(t *testing.T) {
	a, buf := newAcquirer(adc.NewScripted([]int16{11, 22, 33}, nil), 1)
	cc := &testCtl{now: time.Unix(100, 0)}
	a.arm()

	for i := 0; i < 3; i++ {
		tick(t, a, cc)
		cc.now = cc.now.Add(4 * time.Millisecond)
	}
	require.Equal(t, 3, buf.Available())
	for i, want := range []int16{11, 22, 33} {
		s, ok := buf.Read()
		require.True(t, ok)
		require.Equal(t, uint32(i), s.Seq)
		require.Equal(t, want, s.Values[0])
		require.Equal(t, uint32(i*4), s.CaptureMillis)
	}
}

func TestAcquirerPairsChannels(t *testing.T) {
	conv := adc.NewScripted([]int16{100, 300}, []int16{200, 400})
	a, buf := newAcquirer(conv, 2)
	cc := &testCtl{now: time.Now()}
	a.arm()

	// First conversion of a pair must not surface a record.
	tick(t, a, cc)
	require.Equal(t, 0, buf.Available())

	tick(t, a, cc)
	require.Equal(t, 1, buf.Available())
	s, _ := buf.Read()
	require.Equal(t, [2]int16{100, 200}, s.Values)

	tick(t, a, cc)
	tick(t, a, cc)
	s, ok := buf.Read()
	require.True(t, ok)
	require.Equal(t, [2]int16{300, 400}, s.Values)
}

func TestAcquirerNoTickNoSample(t *testing.T) {
	a, buf := newAcquirer(adc.NewScripted([]int16{1}, nil), 1)
	cc := &testCtl{now: time.Now()}
	a.arm()
	// Ready never asserted: a dead converter produces silence, not a
	// crash, and the tick counter stays at zero.
	for i := 0; i < 10; i++ {
		require.NoError(t, a.Control(cc))
	}
	require.Equal(t, 0, buf.Available())
	require.Equal(t, uint64(0), a.Timer.Ticks())
}

func TestSessionBaselineReset(t *testing.T) {
	a, buf := newAcquirer(adc.NewScripted([]int16{1, 2, 3, 4}, nil), 1)
	cc := &testCtl{now: time.Unix(1000, 0)}
	a.arm()

	tick(t, a, cc)
	cc.now = cc.now.Add(5 * time.Second)
	tick(t, a, cc)

	s, _ := buf.Read()
	require.Equal(t, uint32(0), s.CaptureMillis)
	s, _ = buf.Read()
	require.Equal(t, uint32(5000), s.CaptureMillis)

	// Stop and restart much later: the new session starts near zero
	// instead of carrying the accumulated offset.
	a.disarm()
	a.arm()
	cc.now = cc.now.Add(time.Hour)
	tick(t, a, cc)
	s, ok := buf.Read()
	require.True(t, ok)
	require.Equal(t, uint32(0), s.CaptureMillis)
	require.Equal(t, uint32(2), s.Seq) // ids keep increasing across sessions
}

func TestDisarmResetsChannel(t *testing.T) {
	conv := adc.NewScripted([]int16{10, 20}, []int16{-10, -20})
	a, buf := newAcquirer(conv, 2)
	cc := &testCtl{now: time.Now()}
	a.arm()

	tick(t, a, cc) // half a pair in flight
	a.disarm()
	a.arm()

	// The held half-pair must not leak into the new session.
	tick(t, a, cc)
	require.Equal(t, 0, buf.Available())
	tick(t, a, cc)
	s, ok := buf.Read()
	require.True(t, ok)
	require.Equal(t, [2]int16{20, -10}, s.Values)
}
