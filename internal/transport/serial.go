package transport

import (
	"fmt"
	"sort"
	"time"

	"go.bug.st/serial"
)

// SerialPort is a Transport backed by a real serial device.
type SerialPort struct {
	handle Handle
	port   serial.Port
}

// Open opens the serial device described by h.
func Open(h Handle) (*SerialPort, error) {
	if h.Baud == 0 {
		h.Baud = DefaultBaud
	}
	if h.ReadTimeout == 0 {
		h.ReadTimeout = DefaultReadTimeout
	}

	port, err := serial.Open(h.Port, &serial.Mode{BaudRate: h.Baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", h, err)
	}
	if err := port.SetReadTimeout(h.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", h.Port, err)
	}

	return &SerialPort{handle: h, port: port}, nil
}

func (s *SerialPort) Name() string { return s.handle.String() }

func (s *SerialPort) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialPort) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, err
	}
	// Half-duplex link: make sure the bytes left the host before we start
	// waiting for the reply.
	return n, s.port.Drain()
}

func (s *SerialPort) SetReadTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

func (s *SerialPort) Close() error {
	return s.port.Close()
}

// ListPorts returns the serial ports present on this host, sorted.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}
