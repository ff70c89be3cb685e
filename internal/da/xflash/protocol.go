package xflash

import (
	"encoding/binary"
	"io"
	"log"

	"github.com/tommynok/penumbra/internal/auth"
	"github.com/tommynok/penumbra/internal/da"
	"github.com/tommynok/penumbra/internal/model"
	"github.com/tommynok/penumbra/internal/perr"
	"github.com/tommynok/penumbra/internal/transport"
)

var logger = log.New(log.Writer(), "[xflash] ", log.LstdFlags)

// Cmd is an XFlash command word (spec.md §4.2's "rich command set").
type Cmd uint32

const (
	CmdConnect    Cmd = 0x0001
	CmdDevCtrl    Cmd = 0x0002
	CmdBootTo     Cmd = 0x0010
	CmdReadFlash  Cmd = 0x0020
	CmdWriteFlash Cmd = 0x0021
	CmdEraseFlash Cmd = 0x0022
	CmdFormat     Cmd = 0x0023
	CmdRead32     Cmd = 0x0030
	CmdWrite32    Cmd = 0x0031
	CmdGetUSBSpd  Cmd = 0x0040
	CmdShutdown   Cmd = 0x00F0
	CmdReboot     Cmd = 0x00F1
)

// DevCtrl codes (spec.md §4.2's devctrl(code, payload?)).
type DevCtrlCode uint32

const (
	DevCtrlGetPartitions DevCtrlCode = 0x0100
	DevCtrlGetDeviceInfo DevCtrlCode = 0x0101
)

// Engine is the XFlash DAProtocol implementation. It owns conn for the
// lifetime of one DA session (spec.md §3: "Protocol engines borrow the
// transport mutably for the duration of a command").
type Engine struct {
	conn  *transport.Connection
	state da.BootState
	auth  *auth.Manager
	info  *model.DeviceInfo
}

// NewEngine constructs an Engine bound to conn. authMgr may be nil, in
// which case auth.Global() is used lazily.
func NewEngine(conn *transport.Connection, authMgr *auth.Manager) *Engine {
	return &Engine{conn: conn, state: da.StateNew, auth: authMgr}
}

func (e *Engine) authManager() *auth.Manager {
	if e.auth != nil {
		return e.auth
	}
	return auth.Global()
}

func (e *Engine) State() da.BootState { return e.state }

// SetDeviceInfo is called by the façade once hw_code/target_config are
// known, so BootTo can consult the SLA bit (SPEC_FULL.md supplemented
// feature 3).
func (e *Engine) SetDeviceInfo(info *model.DeviceInfo) { e.info = info }

func (e *Engine) SendCmd(cmd Cmd) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(cmd))
	return WriteFrame(e.conn, DataProtocolFlow, buf)
}

func (e *Engine) DevCtrl(code DevCtrlCode, payload []byte) ([]byte, error) {
	if err := e.SendCmd(CmdDevCtrl); err != nil {
		return nil, err
	}
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, uint32(code))
	if err := WriteFrame(e.conn, DataProtocolFlow, hdr); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := WriteFrame(e.conn, DataBulk, payload); err != nil {
			return nil, err
		}
	}
	if err := CheckStatus(e.conn); err != nil {
		return nil, err
	}
	return e.ReadData()
}

func (e *Engine) GetStatus() (uint32, error) { return ReadStatus(e.conn) }

func (e *Engine) ReadData() ([]byte, error) {
	_, payload, err := ReadFrame(e.conn)
	return payload, err
}

// BootTo uploads bytes to addr and instructs the device to jump to it
// (spec.md §4.2). When DeviceInfo reports the SLA bit set, it first
// obtains a signature from the AuthManager and feeds it into the command
// sequence (SPEC_FULL.md supplemented feature 3).
func (e *Engine) BootTo(addr uint32, payload []byte) error {
	if e.info != nil && e.info.TargetConfig.SLA {
		logger.Printf("SLA required before boot_to 0x%08x, requesting signature", addr)
		if err := e.performSLA(); err != nil {
			return err
		}
	}

	if err := e.SendCmd(CmdBootTo); err != nil {
		return err
	}
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], addr)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if err := WriteFrame(e.conn, DataProtocolFlow, hdr); err != nil {
		return err
	}
	if err := WriteFrame(e.conn, DataBulk, payload); err != nil {
		return err
	}
	if err := e.conn.Flush(); err != nil {
		return err
	}
	if _, err := e.conn.ReadExactTimeout(make([]byte, 4), transport.BootToTimeout); err != nil {
		return err
	}
	return CheckStatus(e.conn)
}

// performSLA runs the device's RSA challenge/response gate before a
// boot-to that requires it.
func (e *Engine) performSLA() error {
	purpose := auth.PurposeDaSla
	if e.state < da.StateDA1Uploaded {
		purpose = auth.PurposeBromSla
	}
	if _, payload, err := ReadFrame(e.conn); err == nil {
		if len(payload) < 8 {
			return perr.NewProtocol("xflash: SLA challenge frame too short")
		}
		req := &auth.SignRequest{
			Rnd:     payload,
			SocID:   e.info.SoCID,
			HRID:    e.info.HRID,
			Purpose: purpose,
			PubkMod: payload,
		}
		sig, err := e.authManager().Sign(req)
		if err != nil {
			return err
		}
		return WriteFrame(e.conn, DataBulk, sig)
	} else {
		return err
	}
}

func (e *Engine) Reboot(mode da.RebootMode) error {
	buf := []byte{byte(mode)}
	if err := e.SendCmd(CmdReboot); err != nil {
		return err
	}
	if err := WriteFrame(e.conn, DataProtocolFlow, buf); err != nil {
		return err
	}
	return CheckStatus(e.conn)
}

func (e *Engine) Shutdown() error {
	if err := e.SendCmd(CmdShutdown); err != nil {
		return err
	}
	return CheckStatus(e.conn)
}

func (e *Engine) GetUSBSpeed() (uint32, error) {
	if err := e.SendCmd(CmdGetUSBSpd); err != nil {
		return 0, err
	}
	data, err := e.ReadData()
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, perr.NewProtocol("xflash: short usb-speed response")
	}
	return binary.LittleEndian.Uint32(data), nil
}

// Read32/Write32/ReadFlash/WriteFlash implement da.RawMemoryAccess.

func (e *Engine) Read32(addr uint32) (uint32, error) {
	if err := e.SendCmd(CmdRead32); err != nil {
		return 0, err
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, addr)
	if err := WriteFrame(e.conn, DataProtocolFlow, buf); err != nil {
		return 0, err
	}
	if err := CheckStatus(e.conn); err != nil {
		return 0, err
	}
	data, err := e.ReadData()
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, perr.NewProtocol("xflash: short read32 response")
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (e *Engine) Write32(addr, value uint32) error {
	if err := e.SendCmd(CmdWrite32); err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], addr)
	binary.LittleEndian.PutUint32(buf[4:8], value)
	if err := WriteFrame(e.conn, DataProtocolFlow, buf); err != nil {
		return err
	}
	return CheckStatus(e.conn)
}

func (e *Engine) ReadFlash(addr, length uint64, region string, progress da.ProgressFunc, sink io.Writer) error {
	if err := e.SendCmd(CmdReadFlash); err != nil {
		return err
	}
	hdr := make([]byte, 8+4+len(region))
	binary.LittleEndian.PutUint64(hdr[0:8], addr)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(length))
	copy(hdr[12:], region)
	if err := WriteFrame(e.conn, DataProtocolFlow, hdr); err != nil {
		return err
	}
	if err := CheckStatus(e.conn); err != nil {
		return err
	}

	var written uint64
	for written < length {
		chunk, err := e.ReadData()
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		if _, err := sink.Write(chunk); err != nil {
			return perr.NewIo("write read_flash chunk to sink", err)
		}
		written += uint64(len(chunk))
		if progress != nil {
			progress(written, length)
		}
	}
	return CheckStatus(e.conn)
}

func (e *Engine) WriteFlash(addr, length uint64, source io.Reader, region string, progress da.ProgressFunc) error {
	if err := e.SendCmd(CmdWriteFlash); err != nil {
		return err
	}
	hdr := make([]byte, 8+4+len(region))
	binary.LittleEndian.PutUint64(hdr[0:8], addr)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(length))
	copy(hdr[12:], region)
	if err := WriteFrame(e.conn, DataProtocolFlow, hdr); err != nil {
		return err
	}
	if err := CheckStatus(e.conn); err != nil {
		return err
	}

	const chunkSize = 0x8000
	buf := make([]byte, chunkSize)
	var written uint64
	for written < length {
		want := chunkSize
		if remaining := length - written; remaining < uint64(want) {
			want = int(remaining)
		}
		n, err := io.ReadFull(source, buf[:want])
		if n == 0 && err != nil {
			return perr.NewIo("read write_flash chunk from source", err)
		}
		if err := WriteFrame(e.conn, DataBulk, buf[:n]); err != nil {
			return err
		}
		written += uint64(n)
		if progress != nil {
			progress(written, length)
		}
	}
	return CheckStatus(e.conn)
}

// Upload/Download/Format/ErasePartition implement da.DAProtocol in terms
// of the raw primitives above, applied to a partition's address/size.

func (e *Engine) Upload(part model.Partition, sink io.Writer, progress da.ProgressFunc) error {
	return e.ReadFlash(part.Address, part.Size, part.Name, progress, sink)
}

func (e *Engine) Download(part model.Partition, source io.Reader, size uint64, progress da.ProgressFunc) error {
	return e.WriteFlash(part.Address, size, source, part.Name, progress)
}

func (e *Engine) Format(part model.Partition, progress da.ProgressFunc) error {
	if err := e.SendCmd(CmdFormat); err != nil {
		return err
	}
	hdr := make([]byte, 8+8+len(part.Name))
	binary.LittleEndian.PutUint64(hdr[0:8], part.Address)
	binary.LittleEndian.PutUint64(hdr[8:16], part.Size)
	copy(hdr[16:], part.Name)
	if err := WriteFrame(e.conn, DataProtocolFlow, hdr); err != nil {
		return err
	}
	if progress != nil {
		progress(0, part.Size)
	}
	if err := CheckStatus(e.conn); err != nil {
		return err
	}
	if progress != nil {
		progress(part.Size, part.Size)
	}
	return nil
}

func (e *Engine) ErasePartition(part model.Partition, progress da.ProgressFunc) error {
	if err := e.SendCmd(CmdEraseFlash); err != nil {
		return err
	}
	hdr := make([]byte, 8+8+len(part.Name))
	binary.LittleEndian.PutUint64(hdr[0:8], part.Address)
	binary.LittleEndian.PutUint64(hdr[8:16], part.Size)
	copy(hdr[16:], part.Name)
	if err := WriteFrame(e.conn, DataProtocolFlow, hdr); err != nil {
		return err
	}
	if progress != nil {
		progress(0, part.Size)
	}
	if err := CheckStatus(e.conn); err != nil {
		return err
	}
	if progress != nil {
		progress(part.Size, part.Size)
	}
	return nil
}

// GetPartitions fetches and parses the cached GPT via DevCtrl
// (spec.md §3: "partition table fetched lazily from GPT"). The wire
// schema is this engine's own devctrl response layout: u32 count,
// followed by count entries of {name[64]byte, size u64, address u64,
// kind u32}.
func (e *Engine) GetPartitions() ([]model.Partition, error) {
	data, err := e.DevCtrl(DevCtrlGetPartitions, nil)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, perr.NewProtocol("xflash: short partition table response")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	const entrySize = 64 + 8 + 8 + 4
	out := make([]model.Partition, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		if off+entrySize > len(data) {
			return nil, perr.NewProtocol("xflash: truncated partition table")
		}
		nameBytes := data[off : off+64]
		name := string(nameBytes)
		if idx := indexByte(nameBytes, 0); idx >= 0 {
			name = string(nameBytes[:idx])
		}
		size := binary.LittleEndian.Uint64(data[off+64 : off+72])
		addr := binary.LittleEndian.Uint64(data[off+72 : off+80])
		kind := binary.LittleEndian.Uint32(data[off+80 : off+84])
		out = append(out, model.Partition{Name: name, Size: size, Address: addr, Kind: model.PartitionKind(kind)})
		off += entrySize
	}
	return out, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

var _ da.DAProtocol = (*Engine)(nil)
var _ da.RawMemoryAccess = (*Engine)(nil)
