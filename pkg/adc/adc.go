// Package adc abstracts the analog converter sampled by a sensor node.
package adc

import "errors"

// ErrBadChannel indicates a read on a channel the converter does not
// have.
var ErrBadChannel = errors.New("adc: no such channel")

// Mode selects the converter's conversion mode. Capture runs the
// converter continuously; idle nodes drop back to single-shot to save
// power.
type Mode int

const (
	// ModeSingleShot converts on demand only.
	ModeSingleShot Mode = iota
	// ModeContinuous converts at the configured data rate.
	ModeContinuous
)

// Channels available on the converter.
const (
	ChannelPulse uint8 = 0 // PPG pulse signal
	ChannelEye   uint8 = 1 // EOG eye-movement signal
)

// Converter models an ADS1115-class dual-channel converter. Read
// returns the latest conversion result for the given channel; switching
// the channel reconfigures the input multiplexer, so callers alternate
// channels between conversions rather than within one.
type Converter interface {
	Configure(Mode) error
	Read(channel uint8) (int16, error)
}
