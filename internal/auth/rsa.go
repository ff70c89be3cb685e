// Package auth implements the SLA signer (spec.md §4.7): a process-wide
// append-only registry of Signers, seeded with a built-in local keyring,
// plus the RSA-OAEP-padded modular-exponentiation primitive the BROM/DA
// "SLA" challenge-response gate requires.
package auth

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

// oaepPad implements the OAEP encoding step of PKCS#1 (RFC 8017 §7.1.1),
// producing a k-byte encoded message EM from the challenge bytes. There is
// no ecosystem big-integer-modexp library anywhere in the retrieval pack
// (see DESIGN.md); math/big is the standard library's arbitrary precision
// integer type and the only suitable primitive for this operation.
func oaepPad(message []byte, k int, label []byte) ([]byte, error) {
	h := sha256.New()
	hLen := h.Size()

	if len(message) > k-2*hLen-2 {
		return nil, fmt.Errorf("auth: message too long for OAEP padding (k=%d, hLen=%d, len=%d)", k, hLen, len(message))
	}

	h.Write(label)
	lHash := h.Sum(nil)

	psLen := k - len(message) - 2*hLen - 2
	ps := make([]byte, psLen)

	db := make([]byte, 0, k-hLen-1)
	db = append(db, lHash...)
	db = append(db, ps...)
	db = append(db, 0x01)
	db = append(db, message...)

	seed := make([]byte, hLen)
	// Deterministic seed derived from the message itself: the vendor
	// protocol has no host-side RNG requirement here (the entropy comes
	// from the device-issued challenge, not from the padding), so a
	// SHA-256 of the message keeps oaepPad a pure function suited to
	// unit testing round-trips.
	seedHash := sha256.Sum256(message)
	copy(seed, seedHash[:])

	dbMask := mgf1(seed, len(db))
	maskedDB := xorBytes(db, dbMask)

	seedMask := mgf1(maskedDB, hLen)
	maskedSeed := xorBytes(seed, seedMask)

	em := make([]byte, 0, k)
	em = append(em, 0x00)
	em = append(em, maskedSeed...)
	em = append(em, maskedDB...)
	return em, nil
}

// mgf1 implements the MGF1 mask generation function (RFC 8017 Appendix B.2.1)
// over SHA-256, the only hash this package's OAEP padding uses.
func mgf1(seed []byte, length int) []byte {
	out := make([]byte, 0, length+sha256.Size)
	var counter uint32
	for len(out) < length {
		h := sha256.New()
		h.Write(seed)
		var c [4]byte
		c[0] = byte(counter >> 24)
		c[1] = byte(counter >> 16)
		c[2] = byte(counter >> 8)
		c[3] = byte(counter)
		h.Write(c[:])
		out = append(out, h.Sum(nil)...)
		counter++
	}
	return out[:length]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i%len(b)]
	}
	return out
}

// RSAOaepSign computes sign = pad_oaep(challenge)^d mod n, the primitive
// spec.md §4.7 calls `rsa_oaep_encrypt(rnd, n, d)`. n and d are big-endian
// hex strings, as stored in the built-in keyring (spec.md §4.7).
func RSAOaepSign(challenge []byte, nHex, dHex string) ([]byte, error) {
	n, ok := new(big.Int).SetString(nHex, 16)
	if !ok {
		return nil, fmt.Errorf("auth: invalid modulus hex %q", nHex)
	}
	d, ok := new(big.Int).SetString(dHex, 16)
	if !ok {
		return nil, fmt.Errorf("auth: invalid exponent hex %q", dHex)
	}
	k := (n.BitLen() + 7) / 8

	em, err := oaepPad(challenge, k, nil)
	if err != nil {
		return nil, err
	}

	m := new(big.Int).SetBytes(em)
	if m.Cmp(n) >= 0 {
		return nil, fmt.Errorf("auth: padded message representative too large for modulus")
	}

	c := new(big.Int).Exp(m, d, n)
	sig := c.Bytes()
	if len(sig) < k {
		padded := make([]byte, k)
		copy(padded[k-len(sig):], sig)
		sig = padded
	}
	return sig, nil
}

// ModPow exposes raw modular exponentiation for tests and for code that
// needs to reverse a signature with the vendor's public exponent
// (spec.md §8 invariant 3: m == pow(c,e,n)).
func ModPow(base, exp, mod *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, mod)
}

// OaepPadForTest exposes oaepPad to the package's test file. It is an
// exported function; nothing outside the tests calls it, since callers
// only ever need RSAOaepSign.
func OaepPadForTest(message []byte, k int) ([]byte, error) {
	return oaepPad(message, k, nil)
}
