package device

import (
	"bytes"
	"io"
	"log"

	"github.com/tommynok/penumbra/internal/da"
	daxflash "github.com/tommynok/penumbra/internal/da/xflash"
	"github.com/tommynok/penumbra/internal/model"
	"github.com/tommynok/penumbra/internal/seccfg"
)

// WithExtPayload registers the da_x.bin DA-extension payload bytes a
// later SetSeccfgLockState call relocates and boots, exposing the SEJ
// hardware crypto invocation seccfg needs (spec.md §4.5, §4.6).
// SetSeccfgLockState call relocates and boots.
func WithExtPayload(payload []byte) Option {
	return func(d *Device) { d.extPayload = payload }
}

// SetSeccfgLockState reads the seccfg partition, identifies the SEJ
// algorithm that reproduces its stored hash, flips the lock flag, and
// writes the new header back (spec.md §6: Device::set_seccfg_lock_state,
// §4.6). It returns the bytes written, or nil if no algorithm could be
// identified and the write was refused.
func (d *Device) SetSeccfgLockState(lock model.LockFlag) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	part, err := d.findPartition("seccfg")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := d.engine.Upload(part, &buf, nil); err != nil {
		return nil, err
	}
	headerBytes := buf.Bytes()
	if len(headerBytes) > seccfg.HeaderSize {
		headerBytes = headerBytes[:seccfg.HeaderSize]
	}

	sej, err := d.bringUpSej()
	if err != nil {
		return nil, err
	}

	header, err := seccfg.ParseSeccfg(headerBytes, sej)
	if err != nil {
		log.Printf("[device] seccfg: %v", err)
		return nil, nil
	}

	out, err := seccfg.WriteSeccfg(header, lock, sej)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}

	if err := d.engine.Download(part, bytesReader(out), uint64(len(out)), nil); err != nil {
		return nil, err
	}
	return out, nil
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// bringUpSej loads the DA extension (if not already running) and
// returns its SEJ invocation capability.
func (d *Device) bringUpSej() (seccfg.Invoker, error) {
	if d.sejExt != nil {
		return d.sejExt, nil
	}
	if d.extPayload == nil {
		return nil, errNoExtPayload
	}
	xflashEngine, ok := d.engine.(*daxflash.Engine)
	if !ok {
		return nil, errSejRequiresXFlash
	}
	if d.entry == nil || d.entry.DA2 == nil {
		return nil, errNoDA2ForSej
	}
	ext, err := daxflash.LoadExtension(xflashEngine, d.entry.DA2.Data, d.entry.DA2.Addr, d.extPayload)
	if err != nil {
		return nil, err
	}
	d.sejExt = ext
	return ext, nil
}

var (
	errNoExtPayload      = &da.ErrUnsupportedCapability{Engine: "device", Op: "seccfg (no extension payload registered)"}
	errSejRequiresXFlash = &da.ErrUnsupportedCapability{Engine: "xml", Op: "seccfg (SEJ bring-up requires the XFlash engine)"}
	errNoDA2ForSej       = &da.ErrUnsupportedCapability{Engine: "device", Op: "seccfg (no DA2 region loaded)"}
)
