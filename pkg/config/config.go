// Package config loads the YAML startup configuration for the rig's
// daemons and converts it into the runtime types the packages consume.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sigrigs/sigrig.go/pkg/coord"
	"github.com/sigrigs/sigrig.go/pkg/host"
	"github.com/sigrigs/sigrig.go/pkg/mesh"
	"github.com/sigrigs/sigrig.go/pkg/node"
)

// Node is the sensor node daemon configuration. Durations are plain
// millisecond integers; YAML has no duration type.
type Node struct {
	DeviceID uint8 `yaml:"device_id"`
	// Addr is the node's mesh address. Empty derives one from the
	// machine identity.
	Addr        string `yaml:"addr"`
	Coordinator string `yaml:"coordinator"`
	Broker      string `yaml:"broker"`

	SampleRate   int `yaml:"sample_rate"`
	Channels     int `yaml:"channels"`
	RingCapacity int `yaml:"ring_capacity"`
	IdlePollMs   int `yaml:"idle_poll_ms"`
}

// Peer is one registry entry in the coordinator configuration.
type Peer struct {
	Name     string `yaml:"name"`
	Addr     string `yaml:"addr"`
	DeviceID uint8  `yaml:"device_id"`
	Required bool   `yaml:"required"`
}

// Coord is the coordinator daemon configuration.
type Coord struct {
	Addr   string `yaml:"addr"`
	Broker string `yaml:"broker"`
	Peers  []Peer `yaml:"peers"`

	// Host link: a serial port, or a websocket listen address when
	// SerialPort is empty.
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
	Listen     string `yaml:"listen"`

	Ident         string `yaml:"ident"`
	CheckWindowMs int    `yaml:"check_window_ms"`
	SendSpacingMs int    `yaml:"send_spacing_ms"`
}

// LoadNode reads and parses a node configuration file.
func LoadNode(path string) (*Node, error) {
	var cfg Node
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadCoord reads and parses a coordinator configuration file.
func LoadCoord(path string) (*Coord, error) {
	var cfg Coord
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LocalAddr resolves the node's mesh address, deriving one from the
// machine identity when not configured.
func (c *Node) LocalAddr() (mesh.Addr, error) {
	if c.Addr == "" {
		return mesh.MachineAddr()
	}
	return mesh.ParseAddr(c.Addr)
}

// NodeConfig converts to the node runtime configuration.
func (c *Node) NodeConfig() (node.Config, error) {
	coordAddr, err := mesh.ParseAddr(c.Coordinator)
	if err != nil {
		return node.Config{}, fmt.Errorf("coordinator: %w", err)
	}
	return node.Config{
		DeviceID:     c.DeviceID,
		Coordinator:  coordAddr,
		SampleRate:   c.SampleRate,
		Channels:     c.Channels,
		RingCapacity: c.RingCapacity,
		IdlePoll:     time.Duration(c.IdlePollMs) * time.Millisecond,
	}, nil
}

// LocalAddr resolves the coordinator's mesh address.
func (c *Coord) LocalAddr() (mesh.Addr, error) {
	if c.Addr == "" {
		return mesh.MachineAddr()
	}
	return mesh.ParseAddr(c.Addr)
}

// Registry builds the peer registry.
func (c *Coord) Registry() (*coord.Registry, error) {
	peers := make([]coord.Peer, 0, len(c.Peers))
	for _, p := range c.Peers {
		addr, err := mesh.ParseAddr(p.Addr)
		if err != nil {
			return nil, fmt.Errorf("peer %q: %w", p.Name, err)
		}
		peers = append(peers, coord.Peer{
			Name:     p.Name,
			Addr:     addr,
			DeviceID: p.DeviceID,
			Required: p.Required,
		})
	}
	return coord.NewRegistry(peers)
}

// Options builds the coordinator tuning options.
func (c *Coord) Options() coord.Options {
	return coord.Options{
		Ident:       c.Ident,
		CheckWindow: time.Duration(c.CheckWindowMs) * time.Millisecond,
		SendSpacing: time.Duration(c.SendSpacingMs) * time.Millisecond,
	}
}

// Baud returns the configured baud rate or the host-link default.
func (c *Coord) Baud() int {
	if c.BaudRate <= 0 {
		return host.DefaultBaudRate
	}
	return c.BaudRate
}
