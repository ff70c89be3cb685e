package xml

import (
	"github.com/tommynok/penumbra/internal/da"
	"github.com/tommynok/penumbra/internal/patch"
	"github.com/tommynok/penumbra/internal/perr"
)

// extLoadAddr mirrors the XFlash engine's ext-loader load address
// (spec.md §4.5): the XML variant of da_xml.bin targets the same
// address on the same family of DA2 images.
const extLoadAddr = 0x68000000

// extAckWord is the wire-order bytes of the little-endian ack word
// 0xA1A2A3A4 (spec.md §4.5).
var extAckWord = [4]byte{0xA4, 0xA3, 0xA2, 0xA1}

// Ext is the XML engine's DA-extension bring-up handle. Unlike the
// XFlash variant, symbol resolution here is string-xref-only: the XML
// path never had byte-pattern anchors (spec.md §4.5).
type Ext struct {
	engine  *Engine
	sejBase uint32
}

// LoadExtension relocates the AArch64/ARM slice of da_xml.bin against
// the live DA2 image via string-xref resolution, boots to it, and waits
// for the ack word.
func LoadExtension(e *Engine, code []byte, baseAddr uint32, aarch64 bool, daXml []byte) (*Ext, error) {
	an := patch.NewAnalyzer(code)

	// the DA2 payload carries both architecture slices back to back,
	// split at its midpoint; the v6 container format used by the
	// XFlash path does not apply here (spec.md §4.5's "ARM/AArch64
	// slice of da_xml.bin").
	half := len(daXml) / 2
	var relocated []byte
	if aarch64 {
		relocated = append([]byte(nil), daXml[half:]...)
	} else {
		relocated = append([]byte(nil), daXml[:half]...)
	}

	names := []struct {
		sentinel uint32
		name     string
	}{
		{da.SentinelRegisterDevctrl, "register_devctrl"},
		{da.SentinelMmcGetCard, "register_all_cmds"},
		{da.SentinelMmcSetPartConfig, "download_file"},
		{da.SentinelMmcRpmbSendCommand, "upload_file"},
		{da.SentinelUfshcdQueuecommand, "malloc"},
		{da.SentinelUfshcdGetFreeTag, "free"},
		{da.SentinelGUfsHba, "gettext"},
		{da.SentinelReserved, "mxml_load_string"},
	}
	for _, n := range names {
		off := resolveByXrefOnly(an, code, n.name)
		if off == patch.NotFound {
			continue
		}
		da.RelocateSentinel(relocated, n.sentinel, baseAddr+uint32(off))
	}

	if err := e.BootTo(extLoadAddr, relocated); err != nil {
		return nil, err
	}
	_, payload, err := readFrame(e.conn)
	if err != nil {
		return nil, err
	}
	if len(payload) < 4 || [4]byte{payload[0], payload[1], payload[2], payload[3]} != extAckWord {
		return nil, perr.NewProtocol("xml: ext-loader did not ack")
	}
	return &Ext{engine: e}, nil
}

// resolveByXrefOnly finds name's string literal and walks to its
// enclosing function, skipping the byte-pattern step the XFlash path
// tries first (da.ResolveSymbol would also try a pattern that never
// applies here).
func resolveByXrefOnly(an patch.Analyzer, code []byte, name string) int {
	strOff := an.StringRef(name)
	if strOff == patch.NotFound {
		return patch.NotFound
	}
	xrefOff := an.Xref(strOff)
	if xrefOff == patch.NotFound {
		return patch.NotFound
	}
	return an.FunctionStart(xrefOff)
}
