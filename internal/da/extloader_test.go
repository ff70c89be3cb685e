package da

import (
	"encoding/binary"
	"testing"
)

// buildV6Payload lays out a "PENUMBRAV6P" container whose stored
// offset/length fields are the real slice bounds minus the package's
// +8/-8 adjustment, so ParseV6Payload's output matches arm7/arm64 bytes
// exactly.
func buildV6Payload(arm7, arm64 []byte) []byte {
	arm7Start := v6HeaderLen
	arm7Total := len(arm7) + 8
	arm64Start := arm7Start + arm7Total
	arm64Total := len(arm64) + 8

	buf := make([]byte, arm64Start+arm64Total)
	copy(buf[0:11], v6Magic)
	// stored offsets point 8 bytes before the real slice, stored lengths
	// are 8 bytes longer than the real slice (local-magic skip).
	binary.LittleEndian.PutUint32(buf[16:20], uint32(arm7Start-8))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(arm7Total))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(arm64Start-8))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(arm64Total))

	copy(buf[arm7Start:], arm7)
	copy(buf[arm64Start:], arm64)
	return buf
}

func TestParseV6PayloadAdjustment(t *testing.T) {
	arm7 := []byte("ARM7-STUB-BYTES-HERE")
	arm64 := []byte("AARCH64-STUB-BYTES-HERE-LONGER")
	raw := buildV6Payload(arm7, arm64)

	p, err := ParseV6Payload(raw)
	if err != nil {
		t.Fatalf("ParseV6Payload: %v", err)
	}
	if got := p.Slice(false); string(got) != string(arm7) {
		t.Fatalf("Slice(false) = %q, want %q", got, arm7)
	}
	if got := p.Slice(true); string(got) != string(arm64) {
		t.Fatalf("Slice(true) = %q, want %q", got, arm64)
	}
}

func TestParseV6PayloadRejectsBadMagic(t *testing.T) {
	raw := buildV6Payload([]byte("a"), []byte("b"))
	copy(raw[0:11], "NOT-THE-MAGIC")
	if _, err := ParseV6Payload(raw); err == nil {
		t.Fatal("expected an error for a bad magic")
	}
}

func TestParseV6PayloadRejectsShortBuffer(t *testing.T) {
	if _, err := ParseV6Payload(make([]byte, v6HeaderLen-1)); err == nil {
		t.Fatal("expected an error for a buffer shorter than the header")
	}
}

func TestParseV6PayloadRejectsOutOfRangeSlice(t *testing.T) {
	raw := buildV6Payload([]byte("a"), []byte("b"))
	binary.LittleEndian.PutUint32(raw[20:24], 0xFFFFFF) // blow out arm7Len
	if _, err := ParseV6Payload(raw); err == nil {
		t.Fatal("expected an error when the arm7 slice runs past EOF")
	}
}

func TestRelocateSentinel(t *testing.T) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], SentinelRegisterDevctrl)
	binary.LittleEndian.PutUint32(buf[8:], SentinelRegisterDevctrl)

	n := RelocateSentinel(buf, SentinelRegisterDevctrl, 0xCAFEBABE)
	if n != 2 {
		t.Fatalf("RelocateSentinel patched %d slots, want 2", n)
	}
	if got := binary.LittleEndian.Uint32(buf[0:]); got != 0xCAFEBABE {
		t.Fatalf("buf[0:4] = %#x, want 0xCAFEBABE", got)
	}
	if got := binary.LittleEndian.Uint32(buf[8:]); got != 0xCAFEBABE {
		t.Fatalf("buf[8:12] = %#x, want 0xCAFEBABE", got)
	}
}

func TestRelocateSentinelLeavesOtherSentinelsAlone(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], SentinelMmcGetCard)
	n := RelocateSentinel(buf, SentinelRegisterDevctrl, 0x1)
	if n != 0 {
		t.Fatalf("RelocateSentinel should not touch a different sentinel value, patched %d", n)
	}
}

func TestRelocateSentinelNoMatches(t *testing.T) {
	buf := make([]byte, 16)
	if n := RelocateSentinel(buf, SentinelReserved, 1); n != 0 {
		t.Fatalf("expected 0 patches, got %d", n)
	}
}
