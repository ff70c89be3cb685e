// Package seccfg parses and rewrites the on-flash seccfg partition
// (spec.md §4.6): a small header carrying the bootloader lock flag and a
// hash pair that a SEJ-algorithm-specific transform must reproduce
// before a write is accepted.
package seccfg

import (
	"encoding/binary"
	"fmt"

	"github.com/tommynok/penumbra/internal/model"
)

// Header layout is this package's own (spec.md §4.6 names the fields
// without a byte-exact vendor layout): magic(8) + version u32 +
// lock_flag u32 + algo u32 + hash[32] + enc_hash[32], padded to
// HeaderSize with zeroes.
const (
	magicStr   = "SECCFGV4"
	HeaderSize = 200
	hashLen    = 32

	offMagic   = 0
	offVersion = 8
	offLock    = 12
	offAlgo    = 16
	offHash    = 20
	offEncHash = offHash + hashLen
)

// SecCfgV4 is the parsed seccfg header plus the algorithm memoised once
// parse_seccfg finds one that reproduces the stored hash.
type SecCfgV4 struct {
	Version uint32
	Lock    model.LockFlag
	Hash    [hashLen]byte
	EncHash [hashLen]byte
	algo    Algo
}

// ParseHeader decodes the first HeaderSize bytes of the seccfg
// partition.
func ParseHeader(data []byte) (*SecCfgV4, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("seccfg: header too short (%d bytes, need %d)", len(data), HeaderSize)
	}
	if string(data[offMagic:offMagic+len(magicStr)]) != magicStr {
		return nil, fmt.Errorf("seccfg: bad magic %q", data[offMagic:offMagic+len(magicStr)])
	}
	s := &SecCfgV4{
		Version: binary.LittleEndian.Uint32(data[offVersion : offVersion+4]),
		Lock:    model.LockFlag(binary.LittleEndian.Uint32(data[offLock : offLock+4])),
		algo:    AlgoUnknown,
	}
	copy(s.Hash[:], data[offHash:offHash+hashLen])
	copy(s.EncHash[:], data[offEncHash:offEncHash+hashLen])
	return s, nil
}

func (s *SecCfgV4) GetHash() []byte          { return s.Hash[:] }
func (s *SecCfgV4) GetEncryptedHash() []byte { return s.EncHash[:] }
func (s *SecCfgV4) SetEncryptedHash(h []byte) {
	copy(s.EncHash[:], h)
}
func (s *SecCfgV4) Algo() Algo      { return s.algo }
func (s *SecCfgV4) SetAlgo(a Algo)  { s.algo = a }

// Create serialises the header back to HeaderSize bytes, ready to write
// to the partition (spec.md §4.6's write_seccfg).
func (s *SecCfgV4) Create() []byte {
	out := make([]byte, HeaderSize)
	copy(out[offMagic:], magicStr)
	binary.LittleEndian.PutUint32(out[offVersion:offVersion+4], s.Version)
	binary.LittleEndian.PutUint32(out[offLock:offLock+4], uint32(s.Lock))
	binary.LittleEndian.PutUint32(out[offAlgo:offAlgo+4], uint32(s.algo))
	copy(out[offHash:offHash+hashLen], s.Hash[:])
	copy(out[offEncHash:offEncHash+hashLen], s.EncHash[:])
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ParseSeccfg tries each SEJ algorithm in the fixed order {SW, HW,
// HWv3, HWv4} against header's encrypted hash; the first whose
// decryption reproduces the plaintext hash wins and is memoised on the
// returned struct (spec.md §4.6).
func ParseSeccfg(headerBytes []byte, sej Invoker) (*SecCfgV4, error) {
	header, err := ParseHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	encHash := header.GetEncryptedHash()
	for _, algo := range probeOrder {
		decoded, err := invoke(sej, encHash, false, algo)
		if err != nil {
			continue
		}
		if bytesEqual(decoded, header.GetHash()) {
			header.SetAlgo(algo)
			return header, nil
		}
	}
	return nil, fmt.Errorf("seccfg: no SEJ algorithm reproduced the stored hash")
}

// WriteSeccfg re-encrypts header's plaintext hash with the memoised
// algorithm and returns the HeaderSize-byte buffer to write back to the
// partition. If no algorithm was identified by ParseSeccfg, the write is
// refused (spec.md §4.6: "write is refused and returns empty").
func WriteSeccfg(header *SecCfgV4, lock model.LockFlag, sej Invoker) ([]byte, error) {
	if header.Algo() == AlgoUnknown {
		return nil, nil
	}
	header.Lock = lock
	encHash, err := invoke(sej, header.GetHash(), true, header.Algo())
	if err != nil {
		return nil, err
	}
	header.SetEncryptedHash(encHash)
	return header.Create(), nil
}
