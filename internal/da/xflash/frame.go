// Package xflash implements the XFlash DA protocol engine: a
// length-prefixed binary TLV wire format with numeric status codes
// (spec.md §4.2, §6).
package xflash

import (
	"encoding/binary"

	"github.com/tommynok/penumbra/internal/perr"
	"github.com/tommynok/penumbra/internal/transport"
)

// Magic is the XFlash frame header magic (spec.md §6).
const Magic uint32 = 0xFEEEEEEF

// DataType distinguishes protocol flow words from bulk data transfers
// (spec.md §4.2).
type DataType uint32

const (
	DataProtocolFlow DataType = 1
	DataBulk         DataType = 2
)

const headerSize = 12 // magic(4) + data_type(4) + length(4), all LE

// WriteFrame writes the 12-byte XFlash header followed by payload
// (spec.md §6).
func WriteFrame(conn *transport.Connection, dt DataType, payload []byte) error {
	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(dt))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(payload)))
	if err := conn.WriteAll(hdr); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return conn.WriteAll(payload)
}

// ReadFrame reads one XFlash frame and returns its data type and payload.
func ReadFrame(conn *transport.Connection) (DataType, []byte, error) {
	hdr := make([]byte, headerSize)
	if _, err := conn.ReadExact(hdr); err != nil {
		return 0, nil, err
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	if magic != Magic {
		return 0, nil, perr.NewProtocol("xflash: bad frame magic")
	}
	dt := DataType(binary.LittleEndian.Uint32(hdr[4:8]))
	length := binary.LittleEndian.Uint32(hdr[8:12])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := conn.ReadExact(payload); err != nil {
			return 0, nil, err
		}
	}
	return dt, payload, nil
}

// ReadStatus reads the 4-byte little-endian status word XFlash polls
// after every command (spec.md §4.2).
func ReadStatus(conn *transport.Connection) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := conn.ReadExact(buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// CheckStatus reads a status word and, if non-zero, returns it wrapped
// per the taxonomy in spec.md §7.
func CheckStatus(conn *transport.Connection) error {
	status, err := ReadStatus(conn)
	if err != nil {
		return err
	}
	if status != 0 {
		return perr.NewXFlash(status)
	}
	return nil
}
