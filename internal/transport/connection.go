package transport

import (
	"time"

	"github.com/tommynok/penumbra/internal/perr"
)

// Port is the physical endpoint a Connection is built on: its identifying
// VID/PID, the mode discovery classified it as, the backend handle, and
// (for serial back-ends) a baud rate (spec.md §3).
type Port struct {
	VendorID  uint16
	ProductID uint16
	Mode      ConnectionType
	Backend   Backend
	BaudRate  int
}

// Connection owns a Port exclusively and enforces the forward-only
// connection-type invariant (spec.md §3). It is not safe for concurrent
// use by multiple commands at once (spec.md §5) — the Device façade
// serialises access with a per-device lock.
type Connection struct {
	port            *Port
	connectionType  ConnectionType
	writePacketSize int
	valid           bool
}

// DefaultWritePacketSize is the XML engine's negotiated chunk size
// default (spec.md §4.3); XFlash engines may override it once the device
// reports its own preference.
const DefaultWritePacketSize = 0x8000

// NewConnection opens port's backend, performs the handshake, and returns
// a Connection pinned at port.Mode.
func NewConnection(port *Port) (*Connection, error) {
	if err := port.Backend.Open(); err != nil {
		return nil, perr.NewIo("open backend", err)
	}
	if err := Handshake(port.Backend, DefaultReadTimeout); err != nil {
		port.Backend.Close()
		return nil, err
	}
	return &Connection{
		port:            port,
		connectionType:  port.Mode,
		writePacketSize: DefaultWritePacketSize,
		valid:           true,
	}, nil
}

func (c *Connection) ConnectionType() ConnectionType { return c.connectionType }

func (c *Connection) WritePacketSize() int { return c.writePacketSize }

func (c *Connection) SetWritePacketSize(n int) { c.writePacketSize = n }

// Advance moves the connection forward to next, enforcing
// Brom -> Preloader -> Da (spec.md §3). Advancing is only meaningful after
// a reboot into the next stage has actually occurred on the device side;
// this call just updates the bookkeeping once the caller has confirmed it.
func (c *Connection) Advance(next ConnectionType) error {
	if next < c.connectionType {
		return perr.NewConnection("connection type may only move forward Brom -> Preloader -> Da")
	}
	c.connectionType = next
	return nil
}

// Invalidate marks the connection unusable; spec.md §5 requires this on
// mid-transfer cancellation, forcing a reboot before re-use.
func (c *Connection) Invalidate() { c.valid = false }

func (c *Connection) Valid() bool { return c.valid }

func (c *Connection) ReadExact(buf []byte) (int, error) {
	if !c.valid {
		return 0, perr.NewConnection("connection invalidated")
	}
	n, err := c.port.Backend.ReadExact(buf, DefaultReadTimeout)
	if err != nil {
		c.valid = false
		return n, perr.NewIo("read_exact", err)
	}
	return n, nil
}

// ReadExactTimeout is ReadExact with an explicit deadline, used by the
// boot-to phase (spec.md §5's 30-second allowance).
func (c *Connection) ReadExactTimeout(buf []byte, timeout time.Duration) (int, error) {
	if !c.valid {
		return 0, perr.NewConnection("connection invalidated")
	}
	n, err := c.port.Backend.ReadExact(buf, timeout)
	if err != nil {
		c.valid = false
		return n, perr.NewIo("read_exact", err)
	}
	return n, nil
}

func (c *Connection) WriteAll(buf []byte) error {
	if !c.valid {
		return perr.NewConnection("connection invalidated")
	}
	if err := c.port.Backend.WriteAll(buf); err != nil {
		c.valid = false
		return perr.NewIo("write_all", err)
	}
	return nil
}

func (c *Connection) Flush() error {
	if !c.valid {
		return perr.NewConnection("connection invalidated")
	}
	return c.port.Backend.Flush()
}

func (c *Connection) Close() error {
	c.valid = false
	return c.port.Backend.Close()
}
