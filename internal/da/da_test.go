package da

import (
	"encoding/binary"
	"testing"
)

// buildDAFile assembles a minimal "DAFL" archive with a single hw_code
// entry, each region carrying a trailing signature of sigLen bytes.
func buildDAFile(hwCode uint16, da1, da2 []byte, da1Addr, da2Addr uint32, da1SigLen, da2SigLen uint32) []byte {
	const headerLen = 12
	const entryLen = entryHdrSize

	da1Off := uint32(headerLen + entryLen)
	da2Off := da1Off + uint32(len(da1))

	buf := make([]byte, int(da2Off)+len(da2))
	copy(buf[0:4], fileMagic)
	binary.LittleEndian.PutUint32(buf[4:8], 1) // version
	binary.LittleEndian.PutUint32(buf[8:12], 1) // entryCount

	off := headerLen
	binary.LittleEndian.PutUint16(buf[off:], hwCode)
	binary.LittleEndian.PutUint32(buf[off+4:], da1Off)
	binary.LittleEndian.PutUint32(buf[off+8:], uint32(len(da1)))
	binary.LittleEndian.PutUint32(buf[off+12:], da1Addr)
	binary.LittleEndian.PutUint32(buf[off+16:], da1SigLen)
	binary.LittleEndian.PutUint32(buf[off+20:], da2Off)
	binary.LittleEndian.PutUint32(buf[off+24:], uint32(len(da2)))
	binary.LittleEndian.PutUint32(buf[off+28:], da2Addr)
	binary.LittleEndian.PutUint32(buf[off+32:], da2SigLen)

	copy(buf[da1Off:], da1)
	copy(buf[da2Off:], da2)
	return buf
}

func TestParseRoundTrip(t *testing.T) {
	da1 := append([]byte("DA1-BODY"), []byte("SIG1")...)
	da2 := append([]byte("DA2-BODY-LONGER"), []byte("SIGNATURE2")...)
	raw := buildDAFile(0x0A01, da1, da2, 0x40000000, 0x50000000, 4, 10)

	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entry := f.ForHWCode(0x0A01)
	if entry == nil {
		t.Fatal("ForHWCode returned nil for a known hw_code")
	}
	if entry.DA1.Addr != 0x40000000 || string(entry.DA1.Data) != string(da1) {
		t.Fatalf("DA1 region mismatch: addr=%#x data=%q", entry.DA1.Addr, entry.DA1.Data)
	}
	if string(entry.DA1.Sig) != "SIG1" {
		t.Fatalf("DA1.Sig = %q, want SIG1", entry.DA1.Sig)
	}
	if entry.DA2.Addr != 0x50000000 || string(entry.DA2.Data) != string(da2) {
		t.Fatalf("DA2 region mismatch: addr=%#x data=%q", entry.DA2.Addr, entry.DA2.Data)
	}
	if string(entry.DA2.Sig) != "SIGNATURE2" {
		t.Fatalf("DA2.Sig = %q, want SIGNATURE2", entry.DA2.Sig)
	}

	if f.ForHWCode(0xFFFF) != nil {
		t.Fatal("ForHWCode should return nil for an unknown hw_code")
	}
}

func TestParseZeroLengthRegionIsNil(t *testing.T) {
	raw := buildDAFile(0x0A01, nil, []byte("DA2-ONLY"), 0, 0x1000, 0, 0)
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entry := f.ForHWCode(0x0A01)
	if entry.DA1 != nil {
		t.Fatal("a zero-length region should parse to a nil DAEntryRegion")
	}
	if entry.DA2 == nil || string(entry.DA2.Data) != "DA2-ONLY" {
		t.Fatal("DA2 region should still parse normally")
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	raw := buildDAFile(1, []byte("x"), []byte("y"), 0, 0, 0, 0)
	raw[0] = 'X'
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error for a bad magic")
	}
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	if _, err := Parse([]byte("DAFL")); err == nil {
		t.Fatal("expected an error for a file too short to hold the header")
	}
}

func TestParseRejectsOutOfRangeRegion(t *testing.T) {
	raw := buildDAFile(1, []byte("DA1"), []byte("DA2"), 0, 0, 0, 0)
	// Corrupt DA1's length field (at header offset 12+4+4=20) to run past EOF.
	binary.LittleEndian.PutUint32(raw[12+8:], 0xFFFFFF)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error when a region's [offset:offset+len) exceeds the file")
	}
}

func TestParseRejectsSigLenExceedingRegion(t *testing.T) {
	raw := buildDAFile(1, []byte("DA1"), []byte("DA2"), 0, 0, 10, 0)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error when sig_len exceeds the region length")
	}
}
