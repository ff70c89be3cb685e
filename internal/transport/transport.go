// Package transport implements spec.md §4.1: a byte-stream abstraction
// over the device (open/close/read_exact/write_all/flush/handshake), two
// interchangeable backends (raw USB bulk, USB-CDC serial), and VID/PID
// based device discovery. Modeled on the teacher repo's multi-backend
// device struct (internal/driver/device/controller.go's useUSB/useKernel/
// useIOCTL/useCGMiner fields), generalized to the two backends spec.md
// names instead of four ASIC-specific ones.
package transport

import (
	"time"

	"github.com/tommynok/penumbra/internal/perr"
)

// ConnectionType tags which stage of the device's boot sequence the
// transport is currently talking to. It may only move forward
// Brom -> Preloader -> Da without an explicit reboot (spec.md §3).
type ConnectionType int

const (
	Brom ConnectionType = iota
	Preloader
	Da
)

func (c ConnectionType) String() string {
	switch c {
	case Brom:
		return "Brom"
	case Preloader:
		return "Preloader"
	case Da:
		return "Da"
	default:
		return "Unknown"
	}
}

// DefaultReadTimeout is read_exact's default deadline (spec.md §5).
const DefaultReadTimeout = 5 * time.Second

// BootToTimeout is the DA boot-to phase's deadline (spec.md §5).
const BootToTimeout = 30 * time.Second

// Backend is the raw byte-stream surface a transport back-end (USB bulk,
// USB-CDC serial) implements. Callers use Connection, not Backend,
// directly — Connection layers the handshake and connection-type
// invariant on top.
type Backend interface {
	Open() error
	Close() error
	// ReadExact blocks until len(buf) bytes have been read or the
	// deadline elapses; a short read is an error (spec.md §4.1).
	ReadExact(buf []byte, timeout time.Duration) (int, error)
	// WriteAll blocks until every byte of buf has been handed to the OS.
	WriteAll(buf []byte) error
	Flush() error
}

// handshakePattern is the fixed four-byte pattern exchanged during
// handshake to confirm endianness/liveness before the first real command
// (spec.md §4.1; detail recovered from original_source/core/src/
// connection/port.rs per SPEC_FULL.md item 2).
var handshakePattern = [4]byte{0xA5, 0xA5, 0xA5, 0xA5}

// handshakeEcho is what a live BROM/Preloader/DA endpoint echoes back:
// handshakePattern with every byte bit-inverted.
func handshakeEcho() [4]byte {
	var echo [4]byte
	for i, b := range handshakePattern {
		echo[i] = ^b
	}
	return echo
}

// Handshake writes handshakePattern and verifies the bit-inverted echo.
// Failure here is fatal per spec.md §4.1.
func Handshake(b Backend, timeout time.Duration) error {
	if err := b.WriteAll(handshakePattern[:]); err != nil {
		return perr.NewIo("handshake write", err)
	}
	resp := make([]byte, 4)
	if _, err := b.ReadExact(resp, timeout); err != nil {
		return perr.NewIo("handshake read", err)
	}
	want := handshakeEcho()
	for i := range want {
		if resp[i] != want[i] {
			return perr.NewConnection("handshake mismatch: device did not echo the expected pattern")
		}
	}
	return nil
}
