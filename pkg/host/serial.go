package host

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the rig's USB-serial bridges.
const DefaultBaudRate = 115200

// OpenSerial opens the host link on a serial port.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return p, nil
}

// Ports lists the serial ports present on this machine.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
