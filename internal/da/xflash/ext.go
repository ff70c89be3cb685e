package xflash

import (
	"encoding/binary"

	"github.com/tommynok/penumbra/internal/da"
	"github.com/tommynok/penumbra/internal/patch"
	"github.com/tommynok/penumbra/internal/perr"
)

// extLoadAddr is where da_x.bin is uploaded and executed from (spec.md
// §4.5).
const extLoadAddr = 0x68000000

// extAckWord is the wire-order bytes of the little-endian ack word
// 0xA1A2A3A4 (spec.md §4.5).
var extAckWord = [4]byte{0xA4, 0xA3, 0xA2, 0xA1}

// Ext is a bring-up handle for the DA extension payload (spec.md §4.5):
// once the relocated da_x.bin is running on the device, it exposes
// register/memory/SEJ primitives over the same XFlash transport.
type Ext struct {
	engine  *Engine
	sejBase uint32
}

// LoadExtension relocates payload's sentinel slots against the live DA2
// image, uploads it to extLoadAddr, jumps to it and waits for the ack
// word (spec.md §4.5). Symbol resolution uses da.ResolveSymbol, which
// tries the byte-pattern anchors spec.md §4.5 gives before falling back
// to a string-xref walk.
func LoadExtension(e *Engine, code []byte, baseAddr uint32, payload []byte) (*Ext, error) {
	an := patch.NewAnalyzer(code)

	relocated := make([]byte, len(payload))
	copy(relocated, payload)

	type slot struct {
		sentinel uint32
		name     string
	}
	slots := []slot{
		{da.SentinelRegisterDevctrl, "register_devctrl"},
		{da.SentinelMmcGetCard, "mmc_get_card"},
		{da.SentinelMmcSetPartConfig, "mmc_set_part_config"},
		{da.SentinelMmcRpmbSendCommand, "mmc_rpmb_send_command"},
		{da.SentinelUfshcdQueuecommand, "ufshcd_queuecommand"},
		{da.SentinelUfshcdGetFreeTag, "ufshcd_get_free_tag"},
		{da.SentinelGUfsHba, "g_ufs_hba"},
	}
	for _, s := range slots {
		off := da.ResolveSymbol(an, code, s.name)
		if off == patch.NotFound {
			continue // best-effort: not every symbol exists on every DA2
		}
		da.RelocateSentinel(relocated, s.sentinel, baseAddr+uint32(off))
	}

	if err := e.BootTo(extLoadAddr, relocated); err != nil {
		return nil, err
	}
	if err := e.SendCmd(CmdExtAck); err != nil {
		return nil, err
	}
	ack, err := e.ReadData()
	if err != nil {
		return nil, err
	}
	if err := CheckStatus(e.conn); err != nil {
		return nil, perr.NewProtocol("xflash: ext-loader failed to start: " + err.Error())
	}
	if len(ack) < 4 || [4]byte{ack[0], ack[1], ack[2], ack[3]} != extAckWord {
		return nil, perr.NewProtocol("xflash: ext-loader did not ack")
	}

	ext := &Ext{engine: e}
	sejBase, err := rediscoverSejBase(an, code, true)
	if err == nil {
		ext.sejBase = sejBase
		if err := ext.setSejBase(sejBase); err != nil {
			return ext, err
		}
	}
	return ext, nil
}

// rediscoverSejBase locates the g_ufs_hba anchor in the live DA2 image and
// then finds the MOV/MOVK (AArch64) or MOVW/MOVT (ARM) instruction pair
// that takes its address, via the architecture analyser's xref walk
// (spec.md §4.5). It returns the file offset of that referencing
// instruction pair, not a decoded immediate — the byte-pattern anchors
// spec.md §4.5 gives are keyed on code location, not on the register
// value the DA2 computes from it, so the xref offset alone is what
// setSejBase needs to steer the device-side SEJ base back onto the same
// anchor.
func rediscoverSejBase(an patch.Analyzer, code []byte, aarch64 bool) (uint32, error) {
	off := da.ResolveSymbol(an, code, "g_ufs_hba")
	if off == patch.NotFound {
		return 0, perr.NewProtocol("xflash: could not locate SEJ base anchor")
	}
	xrefOff := an.Xref(off)
	if xrefOff == patch.NotFound {
		return 0, perr.NewProtocol("xflash: no xref near SEJ base anchor")
	}
	return uint32(xrefOff), nil
}

const (
	CmdExtAck     Cmd = 0x00E0
	CmdExtSetSej  Cmd = 0x00E1
	CmdExtReadReg Cmd = 0x00E2
	CmdExtWriteRg Cmd = 0x00E3
	CmdExtReadMem Cmd = 0x00E4
	CmdExtSej     Cmd = 0x00E5
)

func (x *Ext) setSejBase(addr uint32) error {
	if err := x.engine.SendCmd(CmdExtSetSej); err != nil {
		return err
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, addr)
	if err := WriteFrame(x.engine.conn, DataProtocolFlow, buf); err != nil {
		return err
	}
	return CheckStatus(x.engine.conn)
}

// ExtReadRegister reads one 32-bit MMIO register through the live
// extension.
func (x *Ext) ExtReadRegister(addr uint32) (uint32, error) {
	if err := x.engine.SendCmd(CmdExtReadReg); err != nil {
		return 0, err
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, addr)
	if err := WriteFrame(x.engine.conn, DataProtocolFlow, buf); err != nil {
		return 0, err
	}
	if err := CheckStatus(x.engine.conn); err != nil {
		return 0, err
	}
	data, err := x.engine.ReadData()
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, perr.NewProtocol("xflash: short ext-read-register response")
	}
	return binary.LittleEndian.Uint32(data), nil
}

// ExtWriteRegister writes one 32-bit MMIO register.
func (x *Ext) ExtWriteRegister(addr, value uint32) error {
	if err := x.engine.SendCmd(CmdExtWriteRg); err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], addr)
	binary.LittleEndian.PutUint32(buf[4:8], value)
	if err := WriteFrame(x.engine.conn, DataProtocolFlow, buf); err != nil {
		return err
	}
	return CheckStatus(x.engine.conn)
}

// ExtReadMem reads an arbitrary memory span through the live extension,
// unlike Engine.ReadFlash which only addresses storage regions.
func (x *Ext) ExtReadMem(addr uint32, length uint32) ([]byte, error) {
	if err := x.engine.SendCmd(CmdExtReadMem); err != nil {
		return nil, err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], addr)
	binary.LittleEndian.PutUint32(buf[4:8], length)
	if err := WriteFrame(x.engine.conn, DataProtocolFlow, buf); err != nil {
		return nil, err
	}
	if err := CheckStatus(x.engine.conn); err != nil {
		return nil, err
	}
	return x.engine.ReadData()
}

// ExtSej invokes the SEJ hardware crypto block through the live
// extension with the algorithm-specific flag tuple (spec.md §4.6).
func (x *Ext) ExtSej(data []byte, encrypt, legacy, antiClone, xorFlag bool) ([]byte, error) {
	if err := x.engine.SendCmd(CmdExtSej); err != nil {
		return nil, err
	}
	flags := byte(0)
	if encrypt {
		flags |= 1 << 0
	}
	if legacy {
		flags |= 1 << 1
	}
	if antiClone {
		flags |= 1 << 2
	}
	if xorFlag {
		flags |= 1 << 3
	}
	hdr := make([]byte, 5)
	hdr[0] = flags
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(len(data)))
	if err := WriteFrame(x.engine.conn, DataProtocolFlow, hdr); err != nil {
		return nil, err
	}
	if err := WriteFrame(x.engine.conn, DataBulk, data); err != nil {
		return nil, err
	}
	if err := CheckStatus(x.engine.conn); err != nil {
		return nil, err
	}
	return x.engine.ReadData()
}
