package seccfg

import (
	"encoding/binary"
	"testing"

	"github.com/tommynok/penumbra/internal/model"
)

// fakeSej is a reversible stand-in for hardware SEJ crypto: it XORs data
// with a key derived from the flag tuple, so encrypt and decrypt are the
// same operation and ParseSeccfg/WriteSeccfg can be exercised without a
// real device attached.
type fakeSej struct{}

func flagKey(legacy, antiClone, xorFlag bool) byte {
	var k byte
	if legacy {
		k |= 0x1
	}
	if antiClone {
		k |= 0x2
	}
	if xorFlag {
		k |= 0x4
	}
	return k + 1 // avoid an all-zero key so every algo differs from plaintext
}

func (fakeSej) ExtSej(data []byte, encrypt, legacy, antiClone, xorFlag bool) ([]byte, error) {
	key := flagKey(legacy, antiClone, xorFlag)
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key
	}
	return out, nil
}

func buildHeader(t *testing.T, lock model.LockFlag, hash [32]byte, encHash [32]byte) []byte {
	t.Helper()
	buf := make([]byte, HeaderSize)
	copy(buf[offMagic:], magicStr)
	binary.LittleEndian.PutUint32(buf[offVersion:], 4)
	binary.LittleEndian.PutUint32(buf[offLock:], uint32(lock))
	copy(buf[offHash:], hash[:])
	copy(buf[offEncHash:], encHash[:])
	return buf
}

func TestParseSeccfgProbesHWv3(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = byte(i)
	}
	key := flagKey(algoFlags[AlgoHWv3].legacy, algoFlags[AlgoHWv3].antiClone, algoFlags[AlgoHWv3].xor)
	var encHash [32]byte
	for i := range hash {
		encHash[i] = hash[i] ^ key
	}

	raw := buildHeader(t, model.LockFlagLocked, hash, encHash)
	header, err := ParseSeccfg(raw, fakeSej{})
	if err != nil {
		t.Fatalf("ParseSeccfg: %v", err)
	}
	if header.Algo() != AlgoHWv3 {
		t.Fatalf("Algo() = %s, want HWv3", header.Algo())
	}
	if header.Lock != model.LockFlagLocked {
		t.Fatalf("Lock = %v, want Locked", header.Lock)
	}
}

func TestParseSeccfgNoAlgoMatches(t *testing.T) {
	var hash, encHash [32]byte
	for i := range hash {
		hash[i] = byte(i)
		encHash[i] = byte(i) // identity: no flag tuple's XOR key is zero
	}
	raw := buildHeader(t, model.LockFlagUnlocked, hash, encHash)
	if _, err := ParseSeccfg(raw, fakeSej{}); err == nil {
		t.Fatal("expected an error when no algorithm reproduces the stored hash")
	}
}

func TestWriteSeccfgRoundTrip(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = byte(100 + i)
	}
	key := flagKey(algoFlags[AlgoHW].legacy, algoFlags[AlgoHW].antiClone, algoFlags[AlgoHW].xor)
	var encHash [32]byte
	for i := range hash {
		encHash[i] = hash[i] ^ key
	}
	raw := buildHeader(t, model.LockFlagLocked, hash, encHash)

	header, err := ParseSeccfg(raw, fakeSej{})
	if err != nil {
		t.Fatalf("ParseSeccfg: %v", err)
	}

	out, err := WriteSeccfg(header, model.LockFlagUnlocked, fakeSej{})
	if err != nil {
		t.Fatalf("WriteSeccfg: %v", err)
	}
	reparsed, err := ParseSeccfg(out, fakeSej{})
	if err != nil {
		t.Fatalf("ParseSeccfg(rewritten): %v", err)
	}
	if reparsed.Lock != model.LockFlagUnlocked {
		t.Fatalf("Lock after rewrite = %v, want Unlocked", reparsed.Lock)
	}
	if reparsed.Algo() != AlgoHW {
		t.Fatalf("Algo after rewrite = %s, want HW", reparsed.Algo())
	}
}

func TestWriteSeccfgRefusedWithoutAlgo(t *testing.T) {
	header := &SecCfgV4{Version: 4, Lock: model.LockFlagLocked}
	out, err := WriteSeccfg(header, model.LockFlagLocked, fakeSej{})
	if err != nil {
		t.Fatalf("WriteSeccfg should not error when refusing, got: %v", err)
	}
	if out != nil {
		t.Fatal("WriteSeccfg should return a nil buffer when no algorithm was identified")
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	var hash, encHash [32]byte
	raw := buildHeader(t, model.LockFlagLocked, hash, encHash)
	copy(raw[offMagic:], "XXXXXXXX")
	if _, err := ParseHeader(raw); err == nil {
		t.Fatal("expected an error for a bad magic")
	}
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := ParseHeader(make([]byte, HeaderSize-1)); err == nil {
		t.Fatal("expected an error for a buffer shorter than HeaderSize")
	}
}
