// Package sh provides the ishell backed interactive shell for driving
// a rig through the coordinator's host link.
package sh

import (
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	"golang.org/x/net/websocket"

	"github.com/sigrigs/sigrig.go/pkg/host"
)

const (
	shellKey       = "$shell"
	detachedPrompt = "[none] > "

	replyTimeout = 3 * time.Second
)

var (
	// flags

	evalOnly bool
	openPort string
	baudRate int

	// commands

	commands = []*ishell.Cmd{
		&PortsCmd,
		&OpenCmd,
		&CloseCmd,
		&StartCmd,
		&StopCmd,
		&CheckCmd,
		&IdentCmd,
		&ColorCmd,
		&LightCmd,
		&ToneCmd,
		&TestCmd,
		&WatchCmd,
		&StatsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.StringVar(&openPort, "port", "", "Host link to open on start: serial port or ws:// URL.")
	flag.IntVar(&baudRate, "baud", 0, "Serial baud rate.")
}

// AddCmds is used by other command providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// Shell drives one host link.
type Shell struct {
	Interactive bool

	Shell *ishell.Shell

	mu       sync.Mutex
	link     io.ReadWriteCloser
	linkName string

	reportCh chan []host.ConnStatus
	identCh  chan string
	stats    telemetryStats
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		Shell:       ishell.New(),
		reportCh:    make(chan []host.ConnStatus, 1),
		identCh:     make(chan string, 1),
	}
	s.stats.init()
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(detachedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps a command func that requires an open host link.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		s.mu.Lock()
		open := s.link != nil
		s.mu.Unlock()
		if !open {
			c.Err(fmt.Errorf("host link not open"))
			return
		}
		fn(c)
	}
}

// Open attaches the shell to a host link: a ws:// URL or a serial port
// name.
func (s *Shell) Open(target string, baud int) error {
	var link io.ReadWriteCloser
	var err error
	if strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://") {
		link, err = websocket.Dial(target, "", "http://localhost/")
	} else {
		link, err = host.OpenSerial(target, baud)
	}
	if err != nil {
		return err
	}

	s.Close()
	s.mu.Lock()
	s.link = link
	s.linkName = target
	s.mu.Unlock()
	s.stats.reset()
	go s.readLink(link)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", target))
	return nil
}

// Close detaches the current host link, if any.
func (s *Shell) Close() {
	s.mu.Lock()
	link := s.link
	s.link = nil
	s.linkName = ""
	s.mu.Unlock()
	if link != nil {
		link.Close()
		s.Shell.SetPrompt(detachedPrompt)
	}
}

// Send writes raw command bytes to the host link.
func (s *Shell) Send(b ...byte) error {
	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil {
		return fmt.Errorf("host link not open")
	}
	_, err := link.Write(b)
	return err
}

// readLink scans the inbound byte stream until the link closes.
func (s *Shell) readLink(link io.Reader) {
	var scanner host.Scanner
	buf := make([]byte, 256)
	for {
		n, err := link.Read(buf)
		for _, ev := range scanner.FeedAll(buf[:n]) {
			s.event(ev)
		}
		if err != nil {
			return
		}
	}
}

func (s *Shell) event(ev host.Event) {
	switch {
	case ev.Telemetry != nil:
		s.stats.observe(ev.Telemetry)
	case ev.Report != nil:
		select {
		case s.reportCh <- ev.Report:
		default:
		}
	case ev.Ident != "":
		select {
		case s.identCh <- ev.Ident:
		default:
		}
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if openPort != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", openPort)
		}
		if err := s.Open(openPort, baudRate); err != nil {
			log.Fatalf("open %q failed: %v", openPort, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		s.Close()
		return
	}
	log.Fatalln("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
