package capture

import (
	"fmt"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the USB serial bridge most 978 MHz receiver
// dongles present.
const DefaultBaudRate = 921600

// OpenSerial opens a serial-attached receiver emitting capture lines
// and returns a line source over it. A baud of 0 uses the default.
func OpenSerial(device string, baud int) (*LineSource, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	return NewLineSource(port), nil
}
