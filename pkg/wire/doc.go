// Package wire defines the fixed-layout mesh packets.
package wire

// The mesh link carries exactly four packet shapes, discriminated by
// payload length (and, for telemetry, a magic value):
//
//	Telemetry  15 bytes  sensor node -> coordinator
//	Command     2 bytes  coordinator -> node (control plane)
//	Actuator    4 bytes  coordinator -> node (actuator plane)
//	Ack         3 bytes  node -> coordinator
//
// All multi-byte fields are little-endian. Payloads of any other length
// are not for us and must be discarded without an error.
