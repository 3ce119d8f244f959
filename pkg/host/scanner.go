package host

import (
	"github.com/sigrigs/sigrig.go/pkg/wire"
)

// Event is one item recovered from the host byte stream.
// Exactly one field is set.
type Event struct {
	Telemetry *wire.Telemetry
	Report    []ConnStatus
	Ident     string
}

type scanState int

const (
	stateHunt scanState = iota
	stateTelemetry
	stateReportKind
	stateReportCount
	stateReportPairs
)

const maxLine = 128

// Scanner recovers telemetry packets, connectivity reports and ident
// lines from the host byte stream. It consumes one byte at a time and
// resynchronizes on the telemetry magic or the report sentinel, so a
// consumer attaching mid-stream or after dropped bytes recovers on the
// next frame boundary.
type Scanner struct {
	state scanState
	buf   []byte
	count int
	line  []byte
}

// Feed consumes one byte and returns any events it completed.
func (s *Scanner) Feed(b byte) []Event {
	return s.feed(nil, b)
}

// FeedAll consumes a chunk.
func (s *Scanner) FeedAll(p []byte) []Event {
	var events []Event
	for _, b := range p {
		events = s.feed(events, b)
	}
	return events
}

func (s *Scanner) feed(events []Event, b byte) []Event {
	switch s.state {
	case stateHunt:
		switch {
		case b == 0x55: // first byte of the telemetry magic
			s.buf = append(s.buf[:0], b)
			s.state = stateTelemetry
		case b == ReportSentinel:
			s.state = stateReportKind
		case b == '\n' || b == '\r':
			if len(s.line) > 0 {
				events = append(events, Event{Ident: string(s.line)})
				s.line = s.line[:0]
			}
		case b >= 0x20 && b < 0x7f:
			if len(s.line) < maxLine {
				s.line = append(s.line, b)
			}
		}
	case stateTelemetry:
		s.buf = append(s.buf, b)
		if len(s.buf) == 2 && s.buf[1] != 0xAA {
			return s.resync(events)
		}
		if len(s.buf) == wire.TelemetrySize {
			pkt, err := wire.DecodeTelemetry(s.buf)
			if err != nil {
				return s.resync(events)
			}
			s.reset()
			events = append(events, Event{Telemetry: pkt})
		}
	case stateReportKind:
		if b != ReportConn {
			s.reset()
			return s.feed(events, b)
		}
		s.state = stateReportCount
	case stateReportCount:
		s.count = int(b)
		if s.count == 0 {
			s.reset()
			events = append(events, Event{Report: []ConnStatus{}})
			break
		}
		s.buf = s.buf[:0]
		s.state = stateReportPairs
	case stateReportPairs:
		s.buf = append(s.buf, b)
		if len(s.buf) == 2*s.count {
			report := make([]ConnStatus, s.count)
			for i := range report {
				report[i] = ConnStatus{
					DeviceID:  s.buf[2*i],
					Connected: s.buf[2*i+1] != 0,
				}
			}
			s.reset()
			events = append(events, Event{Report: report})
		}
	}
	return events
}

// resync drops the first buffered byte and replays the rest, so a
// false frame start costs exactly one byte.
func (s *Scanner) resync(events []Event) []Event {
	replay := append([]byte(nil), s.buf[1:]...)
	s.reset()
	for _, b := range replay {
		events = s.feed(events, b)
	}
	return events
}

func (s *Scanner) reset() {
	s.state = stateHunt
	s.buf = s.buf[:0]
	s.count = 0
}
