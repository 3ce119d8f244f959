package sh

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/sigrigs/sigrig.go/pkg/host"
	"github.com/sigrigs/sigrig.go/pkg/wire"
)

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%q: expected a byte value", s)
	}
	return byte(v), nil
}

// sendActuator parses up to 3 byte args and sends one actuator frame.
func sendActuator(c *ishell.Context, kind byte) {
	var data [host.CmdPayloadLen]byte
	if len(c.Args) > len(data) {
		c.Err(fmt.Errorf("at most %d data bytes", len(data)))
		return
	}
	for i, arg := range c.Args {
		b, err := parseByte(arg)
		if err != nil {
			c.Err(err)
			return
		}
		data[i] = b
	}
	if err := ShellFrom(c).Send(kind, data[0], data[1], data[2]); err != nil {
		c.Err(err)
	}
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "",
		Func: func(c *ishell.Context) {
			ports, err := host.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, p := range ports {
				c.Println(p)
			}
		},
	}

	// OpenCmd opens the host link.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "PORT|ws://HOST/host [BAUD]",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("port or URL expected"))
				return
			}
			baud := baudRate
			if len(c.Args) > 1 {
				v, err := strconv.Atoi(c.Args[1])
				if err != nil {
					c.Err(err)
					return
				}
				baud = v
			}
			if err := ShellFrom(c).Open(c.Args[0], baud); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd detaches the host link.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// StartCmd starts capture on all nodes.
	StartCmd = ishell.Cmd{
		Name:    "start",
		Aliases: []string{"s"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context) {
			if err := ShellFrom(c).Send(host.CmdStart); err != nil {
				c.Err(err)
			}
		}),
	}

	// StopCmd stops capture on all nodes.
	StopCmd = ishell.Cmd{
		Name:    "stop",
		Aliases: []string{"p"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context) {
			if err := ShellFrom(c).Send(host.CmdStop); err != nil {
				c.Err(err)
			}
		}),
	}

	// CheckCmd runs a connection check and prints the report.
	CheckCmd = ishell.Cmd{
		Name:    "check",
		Aliases: []string{"a"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			// Drop a stale report from an earlier round.
			select {
			case <-s.reportCh:
			default:
			}
			if err := s.Send(host.CmdCheck); err != nil {
				c.Err(err)
				return
			}
			select {
			case report := <-s.reportCh:
				for _, st := range report {
					state := "missing"
					if st.Connected {
						state = "connected"
					}
					c.Printf("device %d: %s\n", st.DeviceID, state)
				}
			case <-time.After(replyTimeout):
				c.Err(fmt.Errorf("no report from coordinator"))
			}
		}),
	}

	// IdentCmd asks the coordinator to identify itself.
	IdentCmd = ishell.Cmd{
		Name:    "ident",
		Aliases: []string{"i"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			select {
			case <-s.identCh:
			default:
			}
			if err := s.Send(host.CmdIdent, 0, 0, 0); err != nil {
				c.Err(err)
				return
			}
			select {
			case line := <-s.identCh:
				c.Println(line)
			case <-time.After(replyTimeout):
				c.Err(fmt.Errorf("no ident reply"))
			}
		}),
	}

	// ColorCmd sets node LED color.
	ColorCmd = ishell.Cmd{
		Name: "color",
		Help: "R G B",
		Func: MustBeOpen(func(c *ishell.Context) {
			sendActuator(c, wire.KindColor)
		}),
	}

	// LightCmd sets the light position indicator.
	LightCmd = ishell.Cmd{
		Name:    "light",
		Aliases: []string{"led"},
		Help:    "POSITION",
		Func: MustBeOpen(func(c *ishell.Context) {
			sendActuator(c, wire.KindLight)
		}),
	}

	// ToneCmd plays a tone on nodes with a buzzer.
	ToneCmd = ishell.Cmd{
		Name: "tone",
		Help: "DURATION_MS SIDE VOLUME",
		Func: MustBeOpen(func(c *ishell.Context) {
			sendActuator(c, wire.KindTone)
		}),
	}

	// TestCmd triggers the node self-test pattern.
	TestCmd = ishell.Cmd{
		Name: "test",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context) {
			sendActuator(c, wire.KindTest)
		}),
	}

	// WatchCmd samples telemetry for a window and prints rates.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[SECONDS]",
		Func: MustBeOpen(func(c *ishell.Context) {
			window := 5 * time.Second
			if len(c.Args) > 0 {
				secs, err := strconv.Atoi(c.Args[0])
				if err != nil || secs <= 0 {
					c.Err(fmt.Errorf("%q: expected seconds", c.Args[0]))
					return
				}
				window = time.Duration(secs) * time.Second
			}
			s := ShellFrom(c)
			before := s.stats.snapshot()
			c.Printf("watching for %s ...\n", window)
			time.Sleep(window)
			after := s.stats.snapshot()

			if len(after) == 0 {
				c.Println("no telemetry")
				return
			}
			for _, id := range sortedIDs(after) {
				d := after[id]
				delta := d.Count - before[id].Count
				lost := d.Lost - before[id].Lost
				rate := float64(delta) / window.Seconds()
				c.Printf("device %d: %d samples (%.1f/s), %d lost, last=%v @%dms\n",
					id, delta, rate, lost, d.LastValues, d.LastMillis)
			}
		}),
	}

	// StatsCmd prints cumulative telemetry counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: func(c *ishell.Context) {
			snap := ShellFrom(c).stats.snapshot()
			if len(snap) == 0 {
				c.Println("no telemetry")
				return
			}
			for _, id := range sortedIDs(snap) {
				d := snap[id]
				c.Printf("device %d: %d samples, %d lost, seq=%d\n",
					id, d.Count, d.Lost, d.LastSeq)
			}
		},
	}
)

func sortedIDs(m map[uint8]devStats) []uint8 {
	ids := make([]uint8, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
