package transport

import (
	"fmt"
	"io"
	"sync"

	ser "go.bug.st/serial"
)

// DefaultTerminator ends every message on the wire.
const DefaultTerminator = "\n"

// Open opens a serial device at the given baud rate (8N1). It's a variable
// so tests can substitute a fake port.
var Open = func(path string, baud int) (io.ReadWriteCloser, error) {
	mode := &ser.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   ser.NoParity,
		StopBits: ser.OneStopBit,
	}
	port, err := ser.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return ser.GetPortsList()
}

// Serial writes messages to a UART, such as a Bluetooth serial link.
type Serial struct {
	path string

	mu     sync.Mutex
	port   io.ReadWriteCloser
	closed bool

	// Terminator is appended to every message.
	Terminator string
}

// OpenSerial opens the port at path.
func OpenSerial(path string, baud int) (*Serial, error) {
	port, err := Open(path, baud)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	return &Serial{path: path, port: port, Terminator: DefaultTerminator}, nil
}

// Send writes msg followed by the terminator in a single write.
func (s *Serial) Send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := io.WriteString(s.port, msg+s.Terminator); err != nil {
		return fmt.Errorf("write serial %s: %w", s.path, err)
	}
	return nil
}

// Path returns the device path.
func (s *Serial) Path() string {
	return s.path
}

// Close closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
