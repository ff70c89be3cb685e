package auth

import (
	"encoding/hex"
	"testing"
)

func TestLocalKeyringCanSignAndSign(t *testing.T) {
	k := NewLocalKeyring()
	nBytes, err := hex.DecodeString(builtinKeys[0].NHex)
	if err != nil {
		t.Fatalf("decode builtin modulus: %v", err)
	}

	req := &SignRequest{
		Rnd:     []byte{0x01, 0x02, 0x03, 0x04},
		SocID:   []byte{0xAA, 0xBB},
		HRID:    []byte{0xCC, 0xDD},
		PubkMod: append([]byte{0x00, 0x01}, nBytes...), // a larger blob containing the modulus
	}

	if !k.CanSign(req) {
		t.Fatal("CanSign should report true when PubkMod contains a builtin modulus")
	}

	sig, err := k.Sign(req)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	wantLen := (len(nBytes)*8 + 7) / 8
	if len(sig) != wantLen {
		t.Fatalf("signature length = %d, want %d (modulus byte length)", len(sig), wantLen)
	}
}

func TestLocalKeyringCanSignFalseForUnknownModulus(t *testing.T) {
	k := NewLocalKeyring()
	req := &SignRequest{PubkMod: []byte("definitely not a registered modulus")}
	if k.CanSign(req) {
		t.Fatal("CanSign should report false for an unrecognised modulus")
	}
	if _, err := k.Sign(req); err == nil {
		t.Fatal("Sign should fail for an unrecognised modulus")
	}
}

func TestNewLocalKeyringAppendsExtraKeys(t *testing.T) {
	extra := rsaKeyPair{NHex: "deadbeef", DHex: "cafebabe"}
	k := NewLocalKeyring(extra)
	if len(k.keys) != len(builtinKeys)+1 {
		t.Fatalf("len(keys) = %d, want %d", len(k.keys), len(builtinKeys)+1)
	}
	if k.keys[len(k.keys)-1] != extra {
		t.Fatal("extra key pair should be appended after the builtin keys")
	}
}

func TestParseKeyPairHex(t *testing.T) {
	pairs := ParseKeyPairHex("aa:bb,cc:dd")
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}
	if pairs[0].NHex != "aa" || pairs[0].DHex != "bb" {
		t.Fatalf("pairs[0] = %+v, want {aa bb}", pairs[0])
	}
	if pairs[1].NHex != "cc" || pairs[1].DHex != "dd" {
		t.Fatalf("pairs[1] = %+v, want {cc dd}", pairs[1])
	}
}

func TestParseKeyPairHexSkipsMalformedEntries(t *testing.T) {
	pairs := ParseKeyPairHex("aa:bb,malformed,cc:dd:ee")
	if len(pairs) != 1 {
		t.Fatalf("expected only the well-formed entry to survive, got %+v", pairs)
	}
	if pairs[0].NHex != "aa" || pairs[0].DHex != "bb" {
		t.Fatalf("unexpected surviving pair: %+v", pairs[0])
	}
}
