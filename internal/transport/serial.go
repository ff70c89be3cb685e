// USB-CDC serial backend (spec.md §4.1's permitted-but-limited back-end:
// "known to lack line-coding control"). There is no serial library among
// the complete pack repos (Daedaluz-goserial in other_examples is raw
// termios/ioctl code, not an importable package — see DESIGN.md); this
// package uses go.bug.st/serial, the standard real-world Go serial port
// library, whose CDC-ACM support on Linux has exactly the line-coding
// limitation spec.md calls out.
package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialBackend is the USB-CDC serial Backend.
type SerialBackend struct {
	path string
	baud int
	port serial.Port
}

// NewSerialBackend returns a backend for the CDC-ACM device at path (e.g.
// /dev/ttyACM0) at baud; the device is opened later, by Open.
func NewSerialBackend(path string, baud int) *SerialBackend {
	return &SerialBackend{path: path, baud: baud}
}

func (b *SerialBackend) Open() error {
	mode := &serial.Mode{BaudRate: b.baud}
	p, err := serial.Open(b.path, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", b.path, err)
	}
	b.port = p
	return nil
}

func (b *SerialBackend) Close() error {
	if b.port == nil {
		return nil
	}
	return b.port.Close()
}

func (b *SerialBackend) WriteAll(buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := b.port.Write(buf[written:])
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serial write: no progress")
		}
		written += n
	}
	return nil
}

func (b *SerialBackend) ReadExact(buf []byte, timeout time.Duration) (int, error) {
	if err := b.port.SetReadTimeout(timeout); err != nil {
		return 0, fmt.Errorf("serial set read timeout: %w", err)
	}
	read := 0
	for read < len(buf) {
		n, err := b.port.Read(buf[read:])
		if err != nil {
			return read, fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			return read, fmt.Errorf("serial read: short read, got %d of %d bytes (timeout)", read, len(buf))
		}
		read += n
	}
	return read, nil
}

func (b *SerialBackend) Flush() error {
	if b.port == nil {
		return nil
	}
	return b.port.Drain()
}
