package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTelemetryRoundTrip(t *testing.T) {
	in := &Telemetry{
		Seq:           42,
		CaptureMillis: 1000,
		Values:        [2]int16{-123, 456},
		DeviceID:      7,
	}
	b := in.Encode()
	require.Len(t, b, TelemetrySize)
	require.Equal(t, byte(0x55), b[0])
	require.Equal(t, byte(0xAA), b[1])

	out, err := DecodeTelemetry(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestTelemetryBadMagic(t *testing.T) {
	b := (&Telemetry{Seq: 1}).Encode()
	b[1] = 0x00
	_, err := DecodeTelemetry(b)
	require.Equal(t, ErrBadMagic, err)
	_, err = Decode(b)
	require.Equal(t, ErrBadMagic, err)
}

func TestDecode(t *testing.T) {
	testCases := []struct {
		name   string
		in     []byte
		expect Packet
	}{
		{"start", []byte{'S', 1}, &Command{Kind: KindStart, DeviceID: 1}},
		{"stop lowercase", []byte{'p', 2}, &Command{Kind: KindStop, DeviceID: 2}},
		{"check broadcast", []byte{'C', 0}, &Command{Kind: KindCheck}},
		{"ack request", []byte{'a', 3}, &Command{Kind: KindAck, DeviceID: 3}},
		{"ack reply", []byte{'A', 1, 1}, &Ack{DeviceID: 1, Status: 1}},
		{"color", []byte{'c', 0xff, 0x20, 0x00}, &Actuator{Kind: KindColor, Data: [3]byte{0xff, 0x20, 0x00}}},
		{"light position", []byte{'L', 30, 0, 0}, &Actuator{Kind: KindLight, Data: [3]byte{30, 0, 0}}},
		{"test pattern", []byte{'t', 0, 0, 0}, &Actuator{Kind: KindTest}},
		{"tone", []byte{'N', 100, 1, 9}, &Actuator{Kind: KindTone, Data: [3]byte{100, 1, 9}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pkt, err := Decode(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.expect, pkt)
			// Kinds are normalized on decode, so re-encoding must
			// produce the canonical upper-case form.
			require.Equal(t, tc.expect.Encode(), pkt.Encode())
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	testCases := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"single byte", []byte{'S'}},
		{"unknown command kind", []byte{'X', 1}},
		{"unknown actuator kind", []byte{'S', 0, 0, 0}},
		{"ack with wrong discriminator", []byte{'B', 1, 1}},
		{"truncated telemetry", make([]byte, TelemetrySize-1)},
		{"oversized", make([]byte, TelemetrySize+1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.in)
			require.Equal(t, ErrUnrecognized, err)
		})
	}
}
