package auth

import (
	"encoding/hex"
	"testing"
)

type stubSigner struct {
	name    string
	modulus string
	sig     []byte
	err     error
}

func (s *stubSigner) Name() string { return s.name }
func (s *stubSigner) CanSign(req *SignRequest) bool {
	return string(req.PubkMod) == s.modulus
}
func (s *stubSigner) Sign(req *SignRequest) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sig, nil
}

func TestManagerDispatchesToFirstMatchingSigner(t *testing.T) {
	m := NewManager()
	m.RegisterSigner(&stubSigner{name: "a", modulus: "mod-a", sig: []byte("sig-a")})
	m.RegisterSigner(&stubSigner{name: "b", modulus: "mod-b", sig: []byte("sig-b")})

	req := &SignRequest{PubkMod: []byte("mod-b")}
	if !m.CanSign(req) {
		t.Fatal("CanSign should report true once a matching signer is registered")
	}
	sig, err := m.Sign(req)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if string(sig) != "sig-b" {
		t.Fatalf("Sign returned %q, want sig-b", sig)
	}
}

func TestManagerNoSignerMatches(t *testing.T) {
	m := NewManager()
	m.RegisterSigner(&stubSigner{name: "a", modulus: "mod-a"})

	req := &SignRequest{PubkMod: []byte("unregistered")}
	if m.CanSign(req) {
		t.Fatal("CanSign should report false when no signer matches")
	}
	if _, err := m.Sign(req); err != errNoSigner {
		t.Fatalf("Sign should fail with errNoSigner, got %v", err)
	}
}

func TestManagerIsAppendOnlyInRegistrationOrder(t *testing.T) {
	m := NewManager()
	first := &stubSigner{name: "first", modulus: "shared", sig: []byte("first-sig")}
	second := &stubSigner{name: "second", modulus: "shared", sig: []byte("second-sig")}
	m.RegisterSigner(first)
	m.RegisterSigner(second)

	sig, err := m.Sign(&SignRequest{PubkMod: []byte("shared")})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if string(sig) != "first-sig" {
		t.Fatalf("Sign should prefer the earliest-registered matching signer, got %q", sig)
	}
}

func TestGlobalSeedsLocalKeyring(t *testing.T) {
	g := Global()
	if g == nil {
		t.Fatal("Global should never return nil")
	}
	if g != Global() {
		t.Fatal("Global should return the same Manager on every call")
	}
	nBytes, err := hex.DecodeString(builtinKeys[0].NHex)
	if err != nil {
		t.Fatalf("decode builtin modulus: %v", err)
	}
	if !g.CanSign(&SignRequest{PubkMod: nBytes}) {
		t.Fatal("Global should be seeded with the built-in LocalKeyring")
	}
}
