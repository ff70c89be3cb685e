package patch

import "encoding/binary"

// AArch64Analyzer implements Analyzer for the A64 instruction set used by
// 64-bit DA2 images (detected via spec.md §4.4's entry-sequence check).
type AArch64Analyzer struct {
	Code []byte
}

func (a *AArch64Analyzer) InstrSize() int { return 4 }

func (a *AArch64Analyzer) StringRef(s string) int {
	return FindString(a.Code, s)
}

func (a *AArch64Analyzer) word(off int) (uint32, bool) {
	if off < 0 || off+4 > len(a.Code) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(a.Code[off:]), true
}

// isADRP reports whether w is an ADRP instruction (op=1, bits 28:24 == 10000).
func isADRP(w uint32) bool {
	return w&0x9F000000 == 0x90000000
}

// isADDImm reports whether w is ADD (immediate), 64-bit, unshifted: used
// here for the low-12-bits completion of an ADRP page address.
func isADDImm(w uint32) bool {
	return w&0xFFC00000 == 0x91000000
}

// adrpImm decodes ADRP's split 21-bit signed immediate (immhi:immlo) in
// units of 4KiB pages.
func adrpImm(w uint32) int64 {
	immlo := int64((w >> 29) & 0x3)
	immhi := int64((w >> 5) & 0x7FFFF)
	imm := (immhi << 2) | immlo
	// sign-extend 21 bits
	if imm&(1<<20) != 0 {
		imm -= 1 << 21
	}
	return imm
}

func addImm12(w uint32) uint32 {
	return (w >> 10) & 0xFFF
}

func rd(w uint32) uint32 { return w & 0x1F }
func rnADD(w uint32) uint32 { return (w >> 5) & 0x1F }

// Xref walks the code looking for an ADRP,Xn / ADD Xn,Xn,#imm pair whose
// combined target equals the virtual address corresponding to
// fileOffset, treating file offset 0 as load address 0 (callers that know
// the real base should add it back on; the patcher only needs file
// offsets, which this preserves since ADRP/ADD deltas are base-agnostic
// relative to the *file-offset-as-address* mapping used consistently
// throughout this package).
func (a *AArch64Analyzer) Xref(fileOffset int) int {
	target := uint64(fileOffset)
	for off := 0; off+8 <= len(a.Code); off += 4 {
		w1, ok := a.word(off)
		if !ok || !isADRP(w1) {
			continue
		}
		pc := uint64(off)
		page := (pc &^ 0xFFF) + uint64(adrpImm(w1))*4096
		w2, ok := a.word(off + 4)
		if !ok || !isADDImm(w2) {
			continue
		}
		if rnADD(w2) != rd(w1) {
			continue
		}
		addr := page + uint64(addImm12(w2))
		if addr == target {
			return off
		}
	}
	return NotFound
}

// isSTPPrePair reports whether w is "STP x29, x30, [sp, #-imm]!", the
// canonical AArch64 function prologue.
func isSTPPrePair(w uint32) bool {
	// STP x29, x30, [sp, #-imm]! : bits 31:22 = 1010100110, Rt2=x30(11110), Rt=x29(11101)
	return w&0xFFC07FFF == 0xA9807BFD
}

func (a *AArch64Analyzer) FunctionStart(fileOffset int) int {
	for off := fileOffset - 4; off >= 0; off -= 4 {
		w, ok := a.word(off)
		if !ok {
			break
		}
		if isSTPPrePair(w) {
			return off
		}
	}
	return NotFound
}

func isBL(w uint32) bool { return w&0xFC000000 == 0x94000000 }

func (a *AArch64Analyzer) NextBL(fileOffset int) int {
	start := fileOffset
	if start%4 != 0 {
		start += 4 - start%4
	}
	for off := start; off+4 <= len(a.Code); off += 4 {
		w, ok := a.word(off)
		if ok && isBL(w) {
			return off
		}
	}
	return NotFound
}

func (a *AArch64Analyzer) ResolveBLTarget(blOffset int, baseAddr uint32) (uint32, bool) {
	w, ok := a.word(blOffset)
	if !ok || !isBL(w) {
		return 0, false
	}
	imm26 := int64(w & 0x3FFFFFF)
	if imm26&(1<<25) != 0 {
		imm26 -= 1 << 26
	}
	target := int64(baseAddr) + int64(blOffset) + imm26*4
	return uint32(target), true
}

// EncodeBL produces the AArch64 BL instruction word transferring control
// from pc (its own file offset, added to baseAddr by the caller before
// this call if an absolute encoding is needed) to target, both expressed
// as absolute virtual addresses.
func EncodeBL(pc, target uint32) uint32 {
	delta := int64(target) - int64(pc)
	imm26 := delta / 4
	return 0x94000000 | uint32(imm26&0x3FFFFFF)
}
