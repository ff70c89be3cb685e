package da

import (
	"encoding/binary"
	"fmt"
)

const (
	v6Magic     = "PENUMBRAV6P"
	v6HeaderLen = 32 // magic(11) + pad(5) + 4x u32
)

// V6Payload is the parsed extloader_v6.bin container (spec.md §4.4 step 4,
// §6): a packed structure carrying the ARM7 and AArch64 variants of the
// Ext-Loader stub.
type V6Payload struct {
	raw      []byte
	Arm7Off  uint32
	Arm7Len  uint32
	Arm64Off uint32
	Arm64Len uint32
}

// ParseV6Payload decodes data per spec.md §6: the header is
// "PENUMBRAV6P" + 5 zero bytes + {arm7_off, arm7_len, arm64_off, arm64_len}
// (all u32 LE); every reported offset is +8 and every length is -8 versus
// the stored value, to skip a local magic at the start of each variant's
// slice. ParseV6Payload applies that adjustment so callers see the real,
// directly-usable offset/length (spec.md §8 invariant 6: blobs shorter
// than 32 bytes or without the magic are refused).
func ParseV6Payload(data []byte) (*V6Payload, error) {
	if len(data) < v6HeaderLen {
		return nil, fmt.Errorf("da: v6 payload too short (%d bytes, need >= %d)", len(data), v6HeaderLen)
	}
	if string(data[0:11]) != v6Magic {
		return nil, fmt.Errorf("da: v6 payload bad magic %q", data[0:11])
	}
	rawArm7Off := binary.LittleEndian.Uint32(data[16:20])
	rawArm7Len := binary.LittleEndian.Uint32(data[20:24])
	rawArm64Off := binary.LittleEndian.Uint32(data[24:28])
	rawArm64Len := binary.LittleEndian.Uint32(data[28:32])

	p := &V6Payload{
		raw:      data,
		Arm7Off:  rawArm7Off + 8,
		Arm7Len:  rawArm7Len - 8,
		Arm64Off: rawArm64Off + 8,
		Arm64Len: rawArm64Len - 8,
	}
	if err := p.validate(len(data)); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *V6Payload) validate(total int) error {
	if uint64(p.Arm7Off)+uint64(p.Arm7Len) > uint64(total) {
		return fmt.Errorf("da: v6 payload arm7 slice out of range")
	}
	if uint64(p.Arm64Off)+uint64(p.Arm64Len) > uint64(total) {
		return fmt.Errorf("da: v6 payload arm64 slice out of range")
	}
	return nil
}

// Slice returns a mutable copy of the architecture variant selected by
// aarch64 (true = AArch64, false = ARM/Thumb2), ready for relocation.
func (p *V6Payload) Slice(aarch64 bool) []byte {
	var off, length uint32
	if aarch64 {
		off, length = p.Arm64Off, p.Arm64Len
	} else {
		off, length = p.Arm7Off, p.Arm7Len
	}
	out := make([]byte, length)
	copy(out, p.raw[off:off+length])
	return out
}

// Sentinel relocation slots (spec.md §4.5).
const (
	SentinelRegisterDevctrl      uint32 = 0x11111111
	SentinelMmcGetCard           uint32 = 0x22222222
	SentinelMmcSetPartConfig     uint32 = 0x33333333
	SentinelMmcRpmbSendCommand   uint32 = 0x44444444
	SentinelUfshcdQueuecommand   uint32 = 0x55555555
	SentinelUfshcdGetFreeTag     uint32 = 0x66666666
	SentinelGUfsHba              uint32 = 0x77777777
	SentinelReserved             uint32 = 0x88888888
)

// RelocateSentinel overwrites every little-endian occurrence of sentinel
// within buf with value, returning the number of slots patched. This
// implements the §4.2 invariant-2 guarantee (exact byte replacement, no
// wildcard skipping) specialised to 4-byte words.
func RelocateSentinel(buf []byte, sentinel, value uint32) int {
	var want [4]byte
	binary.LittleEndian.PutUint32(want[:], sentinel)
	var repl [4]byte
	binary.LittleEndian.PutUint32(repl[:], value)

	count := 0
	for i := 0; i+4 <= len(buf); i++ {
		if buf[i] == want[0] && buf[i+1] == want[1] && buf[i+2] == want[2] && buf[i+3] == want[3] {
			copy(buf[i:i+4], repl[:])
			count++
			i += 3
		}
	}
	return count
}
