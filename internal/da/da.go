// Package da implements the DA (Download Agent) container format
// (spec.md §3, §6): parsing a vendor DA blob into per-HW-code regions,
// the in-memory DA2 patcher (spec.md §4.4), symbol resolution shared by
// the patcher and the extension loaders (spec.md §4.5), and the
// Ext-Loader v6 payload container (spec.md §6).
package da

import (
	"encoding/binary"
	"fmt"
)

// DAEntryRegion is one region of a parsed DA file: DA1 or DA2 for a given
// hw_code (spec.md §3). Data always has length >= SigLen (spec.md §3
// invariant); Sig, when present, is the trailing SigLen bytes of Data.
type DAEntryRegion struct {
	Addr   uint32
	Data   []byte
	SigLen uint32
	Sig    []byte
}

// HWEntry groups the DA1/DA2 regions selected by a device's hw_code.
type HWEntry struct {
	HWCode uint16
	DA1    *DAEntryRegion
	DA2    *DAEntryRegion
}

// File is the immutable parsed manifest of a vendor DA blob
// (spec.md §3: "loaded once from host file, immutable after parse").
type File struct {
	Entries map[uint16]*HWEntry
}

// ForHWCode returns the HWEntry for code, or nil if the DA file carries no
// entry for it.
func (f *File) ForHWCode(code uint16) *HWEntry {
	return f.Entries[code]
}

const (
	fileMagic    = "DAFL"
	entryHdrSize = 36 // hwCode(2) + reserved(2) + 2x{offset,len,addr,sigLen}(16 each: DA1, DA2)
)

// Parse decodes a vendor DA archive. The container format is:
//
//	u32 magic ("DAFL")
//	u32 version
//	u32 entryCount
//	entryCount * {
//	  u16 hwCode, u16 reserved
//	  u32 da1Offset, u32 da1Len, u32 da1Addr, u32 da1SigLen
//	  u32 da2Offset, u32 da2Len, u32 da2Addr, u32 da2SigLen
//	}
//
// Region bytes live at [offset:offset+len) in the file; SigLen trailing
// bytes of that slice are the region's signature.
func Parse(data []byte) (*File, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("da: file too short for header (%d bytes)", len(data))
	}
	if string(data[0:4]) != fileMagic {
		return nil, fmt.Errorf("da: bad magic %q, want %q", data[0:4], fileMagic)
	}
	entryCount := binary.LittleEndian.Uint32(data[8:12])

	entries := make(map[uint16]*HWEntry, entryCount)
	off := 12
	for i := uint32(0); i < entryCount; i++ {
		if off+entryHdrSize > len(data) {
			return nil, fmt.Errorf("da: truncated entry table at entry %d", i)
		}
		hwCode := binary.LittleEndian.Uint16(data[off:])
		da1, err := sliceRegion(data, off+4)
		if err != nil {
			return nil, fmt.Errorf("da: entry %d DA1: %w", i, err)
		}
		da2, err := sliceRegion(data, off+20)
		if err != nil {
			return nil, fmt.Errorf("da: entry %d DA2: %w", i, err)
		}
		entries[hwCode] = &HWEntry{HWCode: hwCode, DA1: da1, DA2: da2}
		off += entryHdrSize
	}
	return &File{Entries: entries}, nil
}

func sliceRegion(data []byte, fieldsOff int) (*DAEntryRegion, error) {
	offset := binary.LittleEndian.Uint32(data[fieldsOff:])
	length := binary.LittleEndian.Uint32(data[fieldsOff+4:])
	addr := binary.LittleEndian.Uint32(data[fieldsOff+8:])
	sigLen := binary.LittleEndian.Uint32(data[fieldsOff+12:])

	if length == 0 {
		return nil, nil
	}
	end := uint64(offset) + uint64(length)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("region [%d:%d) exceeds file length %d", offset, end, len(data))
	}
	if uint64(sigLen) > uint64(length) {
		return nil, fmt.Errorf("sig_len %d exceeds region length %d", sigLen, length)
	}
	regionData := make([]byte, length)
	copy(regionData, data[offset:end])

	var sig []byte
	if sigLen > 0 {
		sig = regionData[length-sigLen:]
	}
	return &DAEntryRegion{Addr: addr, Data: regionData, SigLen: sigLen, Sig: sig}, nil
}
