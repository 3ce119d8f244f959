package adc

import "sync"

// Scripted is a converter replaying fixed per-channel value sequences.
// It is intended for tests that need exact readings. Reads past the end
// of a script repeat the last value; an empty script reads zero.
type Scripted struct {
	mu     sync.Mutex
	mode   Mode
	values [2][]int16
	pos    [2]int

	// ConfigureErr, when set, is returned by Configure. It simulates a
	// converter that fails to switch modes.
	ConfigureErr error
}

// NewScripted creates a Scripted converter with per-channel scripts.
func NewScripted(ch0, ch1 []int16) *Scripted {
	return &Scripted{values: [2][]int16{ch0, ch1}}
}

// Configure implements Converter.
func (s *Scripted) Configure(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ConfigureErr != nil {
		return s.ConfigureErr
	}
	s.mode = m
	return nil
}

// Mode returns the last configured mode.
func (s *Scripted) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Read implements Converter.
func (s *Scripted) Read(channel uint8) (int16, error) {
	if channel > ChannelEye {
		return 0, ErrBadChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	script := s.values[channel]
	if len(script) == 0 {
		return 0, nil
	}
	pos := s.pos[channel]
	if pos >= len(script) {
		return script[len(script)-1], nil
	}
	s.pos[channel]++
	return script[pos], nil
}
