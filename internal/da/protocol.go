package da

import (
	"io"

	"github.com/tommynok/penumbra/internal/model"
)

// ProgressFunc is invoked as (written, total) during long transfers.
// spec.md §5 requires invocations for one operation be monotonic in
// written.
type ProgressFunc func(written, total uint64)

// RebootMode selects what the device does after Reboot.
type RebootMode int

const (
	RebootToNormal RebootMode = iota
	RebootToMeta
	RebootToRecovery
)

// BootState is the DA upload/boot state machine (spec.md §4.2).
type BootState int

const (
	StateNew BootState = iota
	StateDA1Uploaded
	StateCarbonaraApplied
	StateDA2Uploaded
	StateHeapBaitApplied
	StateExtensionsUploaded
	StateReady
)

// DAProtocol is the capability surface both the XFlash and the XML
// engines implement (spec.md §9: "tagged variants for the small, closed
// set {XFlash, XML}... the callers never mix them within one session").
// Operations spec.md §9's Open Question marks optional (read_flash,
// write_flash, read32, write32) live on RawMemoryAccess instead; the
// façade type-asserts for it and rejects the call cleanly when an engine
// (the XML engine, today) doesn't implement it, rather than guessing an
// encoding.
type DAProtocol interface {
	State() BootState

	Upload(part model.Partition, sink io.Writer, progress ProgressFunc) error
	Download(part model.Partition, source io.Reader, size uint64, progress ProgressFunc) error
	Format(part model.Partition, progress ProgressFunc) error
	ErasePartition(part model.Partition, progress ProgressFunc) error

	BootTo(addr uint32, payload []byte) error
	Reboot(mode RebootMode) error
	Shutdown() error

	GetPartitions() ([]model.Partition, error)
}

// RawMemoryAccess is the optional capability for engines that can address
// raw flash/SRAM directly (spec.md §9). The XFlash engine implements it;
// the XML engine does not.
type RawMemoryAccess interface {
	ReadFlash(addr, length uint64, region string, progress ProgressFunc, sink io.Writer) error
	WriteFlash(addr, length uint64, source io.Reader, region string, progress ProgressFunc) error
	Read32(addr uint32) (uint32, error)
	Write32(addr uint32, value uint32) error
}

// ErrUnsupportedCapability is returned by the façade when a caller asks
// an engine to do something it doesn't implement.
type ErrUnsupportedCapability struct {
	Engine string
	Op     string
}

func (e *ErrUnsupportedCapability) Error() string {
	return e.Engine + " protocol engine does not support " + e.Op
}
