package wire

import (
	"encoding/binary"
	"errors"
)

// Magic identifies a telemetry packet. Encoded little-endian, so the
// first byte on the wire is 0x55.
const Magic uint16 = 0xAA55

// Fixed packet sizes in bytes.
const (
	TelemetrySize = 15
	CommandSize   = 2
	AckSize       = 3
	ActuatorSize  = 4
)

// Control-plane command kinds. Decoding is case-insensitive and
// normalizes to these values.
const (
	KindStart byte = 'S' // start capture
	KindStop  byte = 'P' // stop capture
	KindCheck byte = 'C' // connection check, expects an Ack
	KindAck   byte = 'A' // ack request / ack reply discriminator
)

// Actuator-plane command kinds. A 4-byte 'C' is a color command; the
// 2-byte 'C' above is a connection check. Length keeps them apart.
const (
	KindColor byte = 'C' // data: r, g, b
	KindLight byte = 'L' // data: light position, 0, 0
	KindTest  byte = 'T' // data: unused
	KindTone  byte = 'N' // data: duration ms, left/right, volume
)

var (
	// ErrUnrecognized indicates the payload is not one of the known
	// packet shapes. Receivers discard such payloads silently.
	ErrUnrecognized = errors.New("unrecognized packet")
	// ErrBadMagic indicates a telemetry-sized payload without the
	// telemetry magic.
	ErrBadMagic = errors.New("bad telemetry magic")
)

// Packet is one of Telemetry, Command, Actuator or Ack.
type Packet interface {
	Encode() []byte
}

// Telemetry carries one timestamped dual-channel sample.
type Telemetry struct {
	Seq           uint32
	CaptureMillis uint32
	Values        [2]int16
	DeviceID      uint8
}

// Encode implements Packet.
func (t *Telemetry) Encode() []byte {
	b := make([]byte, TelemetrySize)
	binary.LittleEndian.PutUint16(b[0:], Magic)
	binary.LittleEndian.PutUint32(b[2:], t.Seq)
	binary.LittleEndian.PutUint32(b[6:], t.CaptureMillis)
	binary.LittleEndian.PutUint16(b[10:], uint16(t.Values[0]))
	binary.LittleEndian.PutUint16(b[12:], uint16(t.Values[1]))
	b[14] = t.DeviceID
	return b
}

// DecodeTelemetry decodes a telemetry packet, validating size and magic.
func DecodeTelemetry(b []byte) (*Telemetry, error) {
	if len(b) != TelemetrySize {
		return nil, ErrUnrecognized
	}
	if binary.LittleEndian.Uint16(b[0:]) != Magic {
		return nil, ErrBadMagic
	}
	return &Telemetry{
		Seq:           binary.LittleEndian.Uint32(b[2:]),
		CaptureMillis: binary.LittleEndian.Uint32(b[6:]),
		Values: [2]int16{
			int16(binary.LittleEndian.Uint16(b[10:])),
			int16(binary.LittleEndian.Uint16(b[12:])),
		},
		DeviceID: b[14],
	}, nil
}

// Command is a control-plane command addressed to a device.
// DeviceID 0 addresses all devices.
type Command struct {
	Kind     byte
	DeviceID uint8
}

// Encode implements Packet.
func (c *Command) Encode() []byte {
	return []byte{c.Kind, c.DeviceID}
}

// Actuator is an output-only command with up to 3 raw data bytes.
type Actuator struct {
	Kind byte
	Data [3]byte
}

// Encode implements Packet.
func (a *Actuator) Encode() []byte {
	return []byte{a.Kind, a.Data[0], a.Data[1], a.Data[2]}
}

// Ack is a node's reply to a connection check.
type Ack struct {
	DeviceID uint8
	Status   uint8
}

// Encode implements Packet.
func (a *Ack) Encode() []byte {
	return []byte{KindAck, a.DeviceID, a.Status}
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func isCommandKind(b byte) bool {
	switch b {
	case KindStart, KindStop, KindCheck, KindAck:
		return true
	}
	return false
}

func isActuatorKind(b byte) bool {
	switch b {
	case KindColor, KindLight, KindTest, KindTone:
		return true
	}
	return false
}

// Decode parses a received payload into one of the known packet shapes.
// Dispatch is by length first, then by the discriminating byte.
func Decode(b []byte) (Packet, error) {
	switch len(b) {
	case TelemetrySize:
		return DecodeTelemetry(b)
	case CommandSize:
		kind := upper(b[0])
		if !isCommandKind(kind) {
			return nil, ErrUnrecognized
		}
		return &Command{Kind: kind, DeviceID: b[1]}, nil
	case AckSize:
		if upper(b[0]) != KindAck {
			return nil, ErrUnrecognized
		}
		return &Ack{DeviceID: b[1], Status: b[2]}, nil
	case ActuatorSize:
		kind := upper(b[0])
		if !isActuatorKind(kind) {
			return nil, ErrUnrecognized
		}
		return &Actuator{Kind: kind, Data: [3]byte{b[1], b[2], b[3]}}, nil
	}
	return nil, ErrUnrecognized
}
