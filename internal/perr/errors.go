// Package perr implements the Penumbra error taxonomy described in
// spec.md §7: a closed set of error kinds that every protocol primitive
// returns through, wrapped the way internal/driver/device/controller.go
// wraps syscall and USB failures in the teacher repo (fmt.Errorf + %w).
package perr

import "fmt"

// XmlKind distinguishes the XML engine's textual status outcomes.
type XmlKind int

const (
	XmlUnknown XmlKind = iota
	XmlUnsupportedCmd
	XmlCancel
)

func (k XmlKind) String() string {
	switch k {
	case XmlUnsupportedCmd:
		return "UnsupportedCmd"
	case XmlCancel:
		return "Cancel"
	default:
		return "Unknown"
	}
}

// XFlashError wraps a raw 32-bit XFlash status word together with its
// decoded severity/domain/case (spec.md §7).
type XFlashError struct {
	Code uint32
}

func (e *XFlashError) Error() string {
	sev, dom, cs := DecodeXFlashCode(e.Code)
	name, known := XFlashCodeName(e.Code)
	if known {
		return fmt.Sprintf("xflash error 0x%08X (%s) [sev=%s dom=%s case=0x%04X]", e.Code, name, sev, dom, cs)
	}
	return fmt.Sprintf("xflash error 0x%08X (unknown) [sev=%s dom=%s case=0x%04X]", e.Code, sev, dom, cs)
}

// XmlError wraps the XML engine's textual error response.
type XmlError struct {
	Message string
	Kind    XmlKind
}

func (e *XmlError) Error() string {
	return fmt.Sprintf("xml error (%s): %s", e.Kind, e.Message)
}

// ProtocolError signals a malformed or unexpected wire exchange that isn't
// representable as a status code (bad header, truncated frame, ...).
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Msg }

// ConnectionError signals a dead or unusable Connection (handshake
// failure, mid-transfer cancellation, forced reboot).
type ConnectionError struct {
	Msg string
}

func (e *ConnectionError) Error() string { return "connection: " + e.Msg }

// IoError wraps a transport-level I/O failure, including deadline
// exceeded on read_exact/write_all.
type IoError struct {
	Msg string
	Err error
}

func (e *IoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("io: %s: %v", e.Msg, e.Err)
	}
	return "io: " + e.Msg
}

func (e *IoError) Unwrap() error { return e.Err }

// StatusError is a generic "command X failed with code Y" error used by
// engines that don't have a richer taxonomy entry for the failure (for
// example a 4-byte BROM status word outside the XFlash code space).
type StatusError struct {
	Ctx  string
	Code uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status: %s failed with code 0x%08X", e.Ctx, e.Code)
}

// PenumbraError is the catch-all for exploitation-engine-specific failures
// that are not wire protocol errors — e.g. "no signer for this modulus".
type PenumbraError struct {
	Msg string
}

func (e *PenumbraError) Error() string { return e.Msg }

// Penumbra constructs a PenumbraError, mirroring the `penumbra("...")`
// helper spec.md §4.7 describes.
func Penumbra(format string, args ...any) error {
	return &PenumbraError{Msg: fmt.Sprintf(format, args...)}
}

func NewIo(msg string, err error) error { return &IoError{Msg: msg, Err: err} }

func NewConnection(msg string) error { return &ConnectionError{Msg: msg} }

func NewProtocol(msg string) error { return &ProtocolError{Msg: msg} }

func NewStatus(ctx string, code uint32) error { return &StatusError{Ctx: ctx, Code: code} }

func NewXFlash(code uint32) error { return &XFlashError{Code: code} }

func NewXml(message string, kind XmlKind) error { return &XmlError{Message: message, Kind: kind} }
