// Package host implements the coordinator's host-link byte protocol:
// raw telemetry forwarding, framed status reports and the small command
// frames a host sends back.
package host

// A status report is framed as '!' 'C' <count> (<device_id> <status>)*
// so it cannot be mistaken for telemetry: neither sentinel byte occurs
// at the start of a telemetry packet.
const (
	ReportSentinel byte = '!'
	ReportConn     byte = 'C'
)

// Host command bytes. Start, stop and check act on the first byte
// alone; ident and the actuator commands carry 3 more payload bytes.
const (
	CmdStart byte = 'S'
	CmdStop  byte = 'P'
	CmdCheck byte = 'A'
	CmdIdent byte = 'I'

	// CmdPayloadLen is the payload size of ident and actuator frames.
	CmdPayloadLen = 3
)

// ConnStatus is one peer's entry in a connectivity report.
type ConnStatus struct {
	DeviceID  uint8
	Connected bool
}

// EncodeConnReport frames a connectivity report for the host link.
func EncodeConnReport(peers []ConnStatus) []byte {
	b := make([]byte, 0, 3+2*len(peers))
	b = append(b, ReportSentinel, ReportConn, byte(len(peers)))
	for _, p := range peers {
		status := byte(0)
		if p.Connected {
			status = 1
		}
		b = append(b, p.DeviceID, status)
	}
	return b
}
