package adc

import (
	"math/rand"
	"sync"

	"github.com/chewxy/math32"
)

// SimConfig parameterizes the simulated converter.
type SimConfig struct {
	// SampleRate is the nominal conversion rate in Hz, used to scale
	// the waveform phase per read.
	SampleRate int
	// HeartRate is the simulated pulse rate in BPM for channel 0.
	HeartRate float32
	// Amplitude is the peak value of the generated waveforms.
	Amplitude float32
	// Noise is the peak uniform noise added to each reading. Zero
	// produces a deterministic signal.
	Noise float32
	// Seed seeds the noise generator.
	Seed int64
}

// DefaultSimConfig returns simulation defaults resembling a PPG/EOG
// front-end at 250 SPS.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		SampleRate: 250,
		HeartRate:  72,
		Amplitude:  12000,
		Noise:      0,
	}
}

// Sim is a software converter producing a pulse-like waveform on the
// pulse channel and a slow drift on the eye channel. It stands in for
// the hardware front-end in daemons run without a rig attached and in
// tests.
type Sim struct {
	cfg  SimConfig
	mu   sync.Mutex
	mode Mode
	step [2]uint32
	rnd  *rand.Rand
}

// NewSim creates a simulated converter.
func NewSim(cfg SimConfig) *Sim {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 250
	}
	if cfg.HeartRate <= 0 {
		cfg.HeartRate = 72
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = 12000
	}
	return &Sim{cfg: cfg, rnd: rand.New(rand.NewSource(cfg.Seed))}
}

// Configure implements Converter.
func (s *Sim) Configure(m Mode) error {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
	return nil
}

// Mode returns the last configured mode.
func (s *Sim) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Read implements Converter. Each read advances the channel's phase by
// one conversion period.
func (s *Sim) Read(channel uint8) (int16, error) {
	if channel > ChannelEye {
		return 0, ErrBadChannel
	}
	s.mu.Lock()
	step := s.step[channel]
	s.step[channel]++
	var noise float32
	if s.cfg.Noise > 0 {
		noise = (s.rnd.Float32()*2 - 1) * s.cfg.Noise
	}
	s.mu.Unlock()

	t := float32(step) / float32(s.cfg.SampleRate)
	var v float32
	if channel == ChannelPulse {
		// Fundamental plus a second harmonic approximates the
		// systolic peak of a PPG waveform.
		phase := 2 * math32.Pi * s.cfg.HeartRate / 60 * t
		v = s.cfg.Amplitude * (0.8*math32.Sin(phase) + 0.2*math32.Sin(2*phase))
	} else {
		// Slow saccade-free drift.
		v = s.cfg.Amplitude * 0.5 * math32.Sin(2*math32.Pi*0.25*t)
	}
	return clamp16(v + noise), nil
}

func clamp16(v float32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
