// Package device implements the Device façade (spec.md §6's "Façade
// surface exposed to the UI/CLI collaborators"): it owns one
// transport.Connection, drives the BROM/Preloader/DA handshake sequence,
// runs the pre-boot Carbonara and post-boot HeapBait exploits, patches
// and uploads the DA, and then serialises every subsequent command
// through whichever DAProtocol engine matched the DA's wire format.
//
// Mirrors the per-device exclusive-lock pattern the teacher's
// internal/driver/device.Device uses around its backend strategies
// (spec.md §5: "the façade serialises commands with a per-device
// exclusive lock").
package device

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/tommynok/penumbra/internal/auth"
	"github.com/tommynok/penumbra/internal/da"
	"github.com/tommynok/penumbra/internal/da/xflash"
	daxml "github.com/tommynok/penumbra/internal/da/xml"
	"github.com/tommynok/penumbra/internal/model"
	"github.com/tommynok/penumbra/internal/perr"
	"github.com/tommynok/penumbra/internal/transport"
)

// CarbonaraFunc runs the pre-DA2-boot exploit that defeats DA
// authentication before the second stage is trusted (spec.md §4's BROM
// stage description). The source gives this exploit a name but not a
// byte-exact recipe (unlike the four DA2 patch steps in §4.4); the
// façade exposes it as a hook so a concrete implementation can be
// supplied per SoC family without changing the state machine.
type CarbonaraFunc func(conn *transport.Connection, hwCode uint16) error

// HeapBaitFunc runs the post-DA2-boot exploit, same caveat as
// CarbonaraFunc.
type HeapBaitFunc func(conn *transport.Connection, hwCode uint16) error

// defaultCarbonara is a no-op placeholder: spec.md names the exploit but
// does not specify its payload, unlike the literal DA2 patch stubs.
func defaultCarbonara(conn *transport.Connection, hwCode uint16) error {
	log.Printf("[device] Carbonara: no SoC-specific recipe registered for hw_code 0x%04X, skipping", hwCode)
	return nil
}

func defaultHeapBait(conn *transport.Connection, hwCode uint16) error {
	log.Printf("[device] HeapBait: no SoC-specific recipe registered for hw_code 0x%04X, skipping", hwCode)
	return nil
}

// Device is the single entry point collaborators (UI, CLI) drive. One
// Device owns one physical connection across its entire BROM → DA
// lifetime.
type Device struct {
	mu sync.Mutex

	port *transport.Port
	conn *transport.Connection

	daFile    *da.File
	entry     *da.HWEntry
	info      *model.DeviceInfo
	engine    da.DAProtocol
	bootState da.BootState

	carbonara CarbonaraFunc
	heapBait  HeapBaitFunc

	authMgr *auth.Manager

	extPayload []byte
	sejExt     *xflash.Ext

	cancel chan struct{}
}

// Option configures a Device at construction time.
type Option func(*Device)

// WithCarbonara overrides the pre-boot exploit hook.
func WithCarbonara(f CarbonaraFunc) Option { return func(d *Device) { d.carbonara = f } }

// WithHeapBait overrides the post-boot exploit hook.
func WithHeapBait(f HeapBaitFunc) Option { return func(d *Device) { d.heapBait = f } }

// WithAuthManager overrides the AuthManager used for SLA signing;
// defaults to auth.Global() (spec.md §9: "pass it through the Device
// explicitly — equally acceptable").
func WithAuthManager(m *auth.Manager) Option { return func(d *Device) { d.authMgr = m } }

// WithDeviceInfo seeds the hw_code/target_config/soc_id/hrid values a
// prior BROM identification exchange produced, so Init's DA engine can
// answer an SLA challenge without re-deriving them.
func WithDeviceInfo(info *model.DeviceInfo) Option {
	return func(d *Device) { d.info = info }
}

// New constructs a Device bound to port and daFile, not yet connected.
func New(port *transport.Port, daFile *da.File, opts ...Option) *Device {
	d := &Device{
		port:      port,
		daFile:    daFile,
		carbonara: defaultCarbonara,
		heapBait:  defaultHeapBait,
		cancel:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init opens the transport, performs the handshake, uploads DA1, runs
// Carbonara, uploads DA2 (patched per spec.md §4.4), runs HeapBait, and
// leaves the Device in BootState StateReady (spec.md §6's Device::init()).
// It uploads no DA extension: the boot state passes through
// StateExtensionsUploaded without one, and the SEJ extension is brought up
// later, on the first SetSeccfgLockState call.
func (d *Device) Init(hwCode uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := transport.NewConnection(d.port)
	if err != nil {
		return err
	}
	d.conn = conn

	entry := d.daFile.ForHWCode(hwCode)
	if entry == nil {
		return perr.Penumbra("no DA entry for hw_code 0x%04X", hwCode)
	}
	d.entry = entry
	d.bootState = da.StateNew
	d.engine = xflash.NewEngine(d.conn, d.authMgr)

	if entry.DA1 != nil {
		if err := d.uploadRegion(entry.DA1); err != nil {
			return d.failAndReboot(err)
		}
		d.bootState = da.StateDA1Uploaded
	}

	if err := d.carbonara(d.conn, hwCode); err != nil {
		return d.failAndReboot(fmt.Errorf("carbonara: %w", err))
	}
	d.bootState = da.StateCarbonaraApplied

	if entry.DA2 == nil {
		return perr.Penumbra("DA file has no DA2 region for hw_code 0x%04X", hwCode)
	}
	report := da.PatchDA2(entry.DA2.Data, entry.DA2.Addr, nil)
	for _, step := range report.Steps {
		if step.Applied {
			log.Printf("[device] da2 patch %s: applied", step.Step)
		} else {
			log.Printf("[device] da2 patch %s: %s", step.Step, step.Warning)
		}
	}
	if err := d.uploadRegion(entry.DA2); err != nil {
		return d.failAndReboot(err)
	}
	d.bootState = da.StateDA2Uploaded

	if err := d.heapBait(d.conn, hwCode); err != nil {
		return d.failAndReboot(fmt.Errorf("heap_bait: %w", err))
	}
	d.bootState = da.StateHeapBaitApplied
	d.bootState = da.StateExtensionsUploaded
	d.bootState = da.StateReady

	if eng, ok := d.engine.(interface {
		SetDeviceInfo(*model.DeviceInfo)
	}); ok && d.info != nil {
		eng.SetDeviceInfo(d.info)
	}

	partitions, err := d.engine.GetPartitions()
	if err != nil {
		log.Printf("[device] failed to fetch partition table: %v", err)
	} else if d.info != nil {
		d.info.Partitions = partitions
	}
	return nil
}

func (d *Device) uploadRegion(region *da.DAEntryRegion) error {
	return d.engine.BootTo(region.Addr, region.Data)
}

// failAndReboot implements spec.md §4.2's "on failure the engine
// attempts a graceful reboot-to-normal and surfaces the error".
func (d *Device) failAndReboot(cause error) error {
	if d.engine != nil {
		if err := d.engine.Reboot(da.RebootToNormal); err != nil {
			log.Printf("[device] reboot-to-normal after failure also failed: %v", err)
		}
	}
	return cause
}

// EnterDAMode re-negotiates to XML if the DA's wire format does not
// match the default XFlash engine. Most DA2 builds speak XFlash; this
// is the façade's escape hatch for the minority that speak XML
// (spec.md §9: "the callers never mix them within one session").
func (d *Device) EnterDAMode(useXML bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !useXML {
		return nil
	}
	d.engine = daxml.NewEngine(d.conn, d.authMgr)
	return nil
}

// GetPartitions returns the partition table (spec.md §6). It queries the
// engine on every call; the copy Init stores in DeviceInfo.Partitions is
// not consulted.
func (d *Device) GetPartitions() ([]model.Partition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return nil, perr.NewConnection("device not initialised")
	}
	return d.engine.GetPartitions()
}

func (d *Device) findPartition(name string) (model.Partition, error) {
	parts, err := d.engine.GetPartitions()
	if err != nil {
		return model.Partition{}, err
	}
	for _, p := range parts {
		if p.Name == name {
			return p, nil
		}
	}
	return model.Partition{}, perr.Penumbra("no such partition: %s", name)
}

// Upload reads partition name into sink (spec.md §6: Device::upload).
func (d *Device) Upload(name string, sink io.Writer, progress da.ProgressFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return perr.NewConnection("device not initialised")
	}
	part, err := d.findPartition(name)
	if err != nil {
		return err
	}
	if err := d.engine.Upload(part, sink, progress); err != nil {
		return d.handleTransferError(err)
	}
	return nil
}

// Download writes size bytes from source into partition name
// (spec.md §6: Device::download).
func (d *Device) Download(name string, size uint64, source io.Reader, progress da.ProgressFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return perr.NewConnection("device not initialised")
	}
	part, err := d.findPartition(name)
	if err != nil {
		return err
	}
	if err := d.engine.Download(part, source, size, progress); err != nil {
		return d.handleTransferError(err)
	}
	return nil
}

// Format wipes and reformats partition name (spec.md §6: Device::format).
func (d *Device) Format(name string, progress da.ProgressFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return perr.NewConnection("device not initialised")
	}
	part, err := d.findPartition(name)
	if err != nil {
		return err
	}
	return d.engine.Format(part, progress)
}

// ErasePartition erases partition name without reformatting
// (spec.md §6: Device::erase_partition).
func (d *Device) ErasePartition(name string, progress da.ProgressFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return perr.NewConnection("device not initialised")
	}
	part, err := d.findPartition(name)
	if err != nil {
		return err
	}
	return d.engine.ErasePartition(part, progress)
}

// GetProtocol exposes the underlying DAProtocol engine for callers that
// need capabilities beyond the façade's surface, e.g. RawMemoryAccess
// type assertions (spec.md §6: Device::get_protocol).
func (d *Device) GetProtocol() da.DAProtocol {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine
}

// CancelAllOperations implements spec.md §5's cancellation semantics:
// the in-flight transfer is not aborted, but the connection is treated
// as fatal and forced to reboot at the next opportunity.
func (d *Device) CancelAllOperations() {
	select {
	case d.cancel <- struct{}{}:
	default:
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine != nil {
		if err := d.engine.Reboot(da.RebootToNormal); err != nil {
			log.Printf("[device] forced reboot after cancellation failed: %v", err)
		}
	}
	if d.conn != nil {
		d.conn.Invalidate()
	}
}

// handleTransferError marks the connection unusable when a transfer fails
// mid-flight with an *perr.IoError, so it cannot be re-used without a
// reboot (spec.md §5). Other errors leave the connection as it is. It
// returns cause unchanged and issues no reboot itself.
func (d *Device) handleTransferError(cause error) error {
	if _, ok := cause.(*perr.IoError); ok {
		if d.conn != nil {
			d.conn.Invalidate()
		}
	}
	return cause
}

// Close releases the transport.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
