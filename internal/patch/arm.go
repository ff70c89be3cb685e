package patch

import "encoding/binary"

// ARMAnalyzer implements Analyzer for ARMv7 code using Thumb-2 encoding,
// the dialect 32-bit DA2 images use (spec.md §4.4).
type ARMAnalyzer struct {
	Code []byte
}

func (a *ARMAnalyzer) InstrSize() int { return 2 }

func (a *ARMAnalyzer) StringRef(s string) int {
	return FindString(a.Code, s)
}

func (a *ARMAnalyzer) halfword(off int) (uint16, bool) {
	if off < 0 || off+2 > len(a.Code) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(a.Code[off:]), true
}

// isMOVW reports whether the 32-bit Thumb-2 instruction at off is MOVW Rd, #imm16.
func (a *ARMAnalyzer) isMOVW(off int) (rd uint8, imm uint16, ok bool) {
	hw1, ok1 := a.halfword(off)
	hw2, ok2 := a.halfword(off + 2)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	if hw1&0xFBF0 != 0xF240 {
		return 0, 0, false
	}
	i := uint16((hw1 >> 10) & 1)
	imm4 := hw1 & 0xF
	imm3 := (hw2 >> 12) & 0x7
	rdv := uint8((hw2 >> 8) & 0xF)
	imm8 := hw2 & 0xFF
	imm16 := (imm4 << 12) | (i << 11) | (imm3 << 8) | imm8
	return rdv, imm16, true
}

// isMOVT reports whether the 32-bit Thumb-2 instruction at off is MOVT Rd, #imm16.
func (a *ARMAnalyzer) isMOVT(off int) (rd uint8, imm uint16, ok bool) {
	hw1, ok1 := a.halfword(off)
	hw2, ok2 := a.halfword(off + 2)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	if hw1&0xFBF0 != 0xF2C0 {
		return 0, 0, false
	}
	i := uint16((hw1 >> 10) & 1)
	imm4 := hw1 & 0xF
	imm3 := (hw2 >> 12) & 0x7
	rdv := uint8((hw2 >> 8) & 0xF)
	imm8 := hw2 & 0xFF
	imm16 := (imm4 << 12) | (i << 11) | (imm3 << 8) | imm8
	return rdv, imm16, true
}

// Xref scans for a MOVW/MOVT pair on the same register that materialises
// an absolute address equal to fileOffset (treated, consistently with
// AArch64Analyzer, as an address numerically equal to the file offset).
func (a *ARMAnalyzer) Xref(fileOffset int) int {
	target := uint32(fileOffset)
	for off := 0; off+8 <= len(a.Code); off += 2 {
		rdLo, lo, ok := a.isMOVW(off)
		if !ok {
			continue
		}
		rdHi, hi, ok := a.isMOVT(off + 4)
		if !ok || rdHi != rdLo {
			continue
		}
		addr := (uint32(hi) << 16) | uint32(lo)
		if addr == target {
			return off
		}
	}
	return NotFound
}

// isThumbPush reports whether the 16-bit Thumb instruction at off is
// PUSH {..., LR} (the canonical Thumb function prologue).
func (a *ARMAnalyzer) isThumbPush(off int) bool {
	hw, ok := a.halfword(off)
	if !ok {
		return false
	}
	// PUSH (encoding T1): 1011 0 10 M rrrrrrrr, M = store LR too.
	return hw&0xFF00 == 0xB500
}

func (a *ARMAnalyzer) FunctionStart(fileOffset int) int {
	for off := fileOffset - 2; off >= 0; off -= 2 {
		if a.isThumbPush(off) {
			return off
		}
	}
	return NotFound
}

// isBL32 reports whether the 32-bit Thumb-2 instruction starting at off
// is a BL (T1) branch-with-link, and if so decodes its signed byte
// displacement relative to PC = off+4 (Thumb's PC bias).
func (a *ARMAnalyzer) isBL32(off int) (delta int32, ok bool) {
	hw1, ok1 := a.halfword(off)
	hw2, ok2 := a.halfword(off + 2)
	if !ok1 || !ok2 {
		return 0, false
	}
	if hw1&0xF800 != 0xF000 || hw2&0xD000 != 0xD000 {
		return 0, false
	}
	s := uint32((hw1 >> 10) & 1)
	imm10 := uint32(hw1 & 0x3FF)
	j1 := uint32((hw2 >> 13) & 1)
	j2 := uint32((hw2 >> 11) & 1)
	imm11 := uint32(hw2 & 0x7FF)
	i1 := ^(j1 ^ s) & 1
	i2 := ^(j2 ^ s) & 1
	imm32 := (s << 24) | (i1 << 23) | (i2 << 22) | (imm10 << 12) | (imm11 << 1)
	signed := int32(imm32)
	if s != 0 {
		signed |= ^int32(0x01FFFFFF) // sign-extend from bit 24
	}
	return signed, true
}

func (a *ARMAnalyzer) NextBL(fileOffset int) int {
	start := fileOffset
	if start%2 != 0 {
		start++
	}
	for off := start; off+4 <= len(a.Code); off += 2 {
		if _, ok := a.isBL32(off); ok {
			return off
		}
	}
	return NotFound
}

func (a *ARMAnalyzer) ResolveBLTarget(blOffset int, baseAddr uint32) (uint32, bool) {
	delta, ok := a.isBL32(blOffset)
	if !ok {
		return 0, false
	}
	// Thumb PC bias: the instruction's PC reads as its address + 4.
	pc := baseAddr + uint32(blOffset) + 4
	target := uint32(int64(pc) + int64(delta))
	return target | 1, true // bit0 set: Thumb interworking target
}

// EncodeThumbBL produces the two Thumb-2 halfwords for a BL from pc
// (absolute, as read during execution i.e. instruction address + 4) to
// target (absolute, Thumb bit0 may or may not be set — ignored here).
func EncodeThumbBL(pc, target uint32) [2]uint16 {
	delta := int32(int64(target&^1) - int64(pc))
	imm32 := uint32(delta)
	s := (imm32 >> 24) & 1
	i1 := (imm32 >> 23) & 1
	i2 := (imm32 >> 22) & 1
	imm10 := (imm32 >> 12) & 0x3FF
	imm11 := (imm32 >> 1) & 0x7FF
	j1 := (^(i1) ^ s) & 1
	j2 := (^(i2) ^ s) & 1
	hw1 := uint16(0xF000 | (s << 10) | imm10)
	hw2 := uint16(0xD000 | (j1 << 13) | (j2 << 11) | imm11)
	return [2]uint16{hw1, hw2}
}
