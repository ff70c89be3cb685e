package patch

// Analyzer resolves symbols and control flow in an uploaded DA image well
// enough to drive the patcher (spec.md §4.4) and the extension loader's
// relocation pass (spec.md §4.5). An Analyzer is a pure function of
// (code, baseAddr): it never mutates code and carries no other state.
type Analyzer interface {
	// StringRef locates the literal s within code and returns its file
	// offset, or NotFound.
	StringRef(s string) int

	// Xref finds code that references the byte at fileOffset (e.g. an
	// ADRP+ADD pair on AArch64, an LDR-literal or MOVW/MOVT pair on ARM)
	// and returns the file offset of the referencing instruction.
	Xref(fileOffset int) int

	// FunctionStart walks backward from fileOffset to the entry point of
	// the enclosing function (its prologue), returning NotFound if none
	// is recognised before the start of code.
	FunctionStart(fileOffset int) int

	// NextBL returns the file offset of the next BL-class branch-and-link
	// instruction at or after fileOffset, or NotFound.
	NextBL(fileOffset int) int

	// ResolveBLTarget computes the absolute virtual address a BL at
	// blOffset transfers control to, given the DA's load base address.
	ResolveBLTarget(blOffset int, baseAddr uint32) (uint32, bool)

	// InstrSize is the size in bytes of one "instruction unit" scanned by
	// NextBL (4 for AArch64, 2 for Thumb2's halfword granularity).
	InstrSize() int
}

// DetectArch reports whether code begins with the AArch64 DA entry
// sequence spec.md §4.4 specifies (bytes 0..4 == C6 01 00 58), returning
// true for AArch64 and false for ARM/Thumb2.
func DetectArch(code []byte) bool {
	return len(code) >= 4 &&
		code[0] == 0xC6 && code[1] == 0x01 && code[2] == 0x00 && code[3] == 0x58
}

// NewAnalyzer picks the ARM or AArch64 analyser for code per DetectArch.
func NewAnalyzer(code []byte) Analyzer {
	if DetectArch(code) {
		return &AArch64Analyzer{Code: code}
	}
	return &ARMAnalyzer{Code: code}
}
