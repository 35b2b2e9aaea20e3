package render

import (
	"fmt"
	"log/slog"

	"go.bug.st/serial"
)

// SerialPort wraps a go.bug.st/serial port connected to the strip controller.
type SerialPort struct {
	port   serial.Port
	name   string
	logger *slog.Logger
}

// OpenSerial opens the named serial device at the given baud rate. On failure
// the error lists the ports that are present.
func OpenSerial(name string, baud int, logger *slog.Logger) (*SerialPort, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		ports, _ := serial.GetPortsList()
		return nil, fmt.Errorf("serial: open %s (available: %v): %w", name, ports, err)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return &SerialPort{port: p, name: name, logger: logger}, nil
}

func (s *SerialPort) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial: write %s: %w", s.name, err)
	}
	return n, nil
}

func (s *SerialPort) Close() error {
	s.logger.Info("serial: closing port", "device", s.name)
	return s.port.Close()
}
