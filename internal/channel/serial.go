package channel

import (
	"fmt"

	"github.com/albenik/go-serial/v2"
)

const defaultBaudRate = 57600

// OpenSerial opens a telemetry radio or flight controller link on a serial
// port and speaks the stream protocol over it
func OpenSerial(port string, baudRate int, options ...func(s *StreamTransport)) (*StreamTransport, <-chan error, error) {
	if baudRate <= 0 {
		baudRate = defaultBaudRate
	}

	p, err := serial.Open(port,
		serial.WithBaudrate(baudRate),
		serial.WithDataBits(8),
		serial.WithParity(serial.NoParity),
		serial.WithStopBits(serial.OneStopBit),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("opening serial port %s: %w", port, err)
	}

	s, stopped := NewStreamTransport(port, p, options...)
	return s, stopped, nil
}
