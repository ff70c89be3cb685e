package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tommynok/penumbra/internal/perr"
)

func TestRemoteSignerCanSignIsCaseInsensitive(t *testing.T) {
	r := NewRemoteSigner("host:22", "root", "pw", "AABBCCDD", "sign %s")
	req := &SignRequest{PubkMod: []byte{0xaa, 0xbb, 0xcc, 0xdd}}
	if !r.CanSign(req) {
		t.Fatal("CanSign should match regardless of hex case")
	}
	if r.CanSign(&SignRequest{PubkMod: []byte{0x11, 0x22}}) {
		t.Fatal("CanSign should report false for a non-matching modulus")
	}
}

func TestRemoteSignerNameIncludesAddr(t *testing.T) {
	r := NewRemoteSigner("10.0.0.5:22", "root", "pw", "aa", "cmd %s")
	if r.Name() != "remote:10.0.0.5:22" {
		t.Fatalf("Name() = %q, want remote:10.0.0.5:22", r.Name())
	}
}

func TestRemoteSignerCommandFormatsChallenge(t *testing.T) {
	r := NewRemoteSigner("h:22", "u", "p", "aa", "run-sla --challenge %s")
	got := r.Command("deadbeef")
	want := "run-sla --challenge deadbeef"
	if got != want {
		t.Fatalf("Command(...) = %q, want %q", got, want)
	}
}

func TestClassifyDialErrorAuthRejected(t *testing.T) {
	err := classifyDialError("h:22", errors.New("ssh: handshake failed: unable to authenticate"))
	var pe *perr.PenumbraError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a PenumbraError for a credentials-rejected failure, got %T", err)
	}
}

func TestClassifyDialErrorConnectionRefused(t *testing.T) {
	err := classifyDialError("h:22", errors.New("dial tcp h:22: connect: connection refused"))
	var ce *perr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected a ConnectionError for connection refused, got %T", err)
	}
}

func TestClassifyDialErrorOtherDialFailureIsConnectionError(t *testing.T) {
	err := classifyDialError("h:22", fmt.Errorf("dial tcp: lookup h: no such host"))
	var ce *perr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected a ConnectionError for an unclassified dial failure, got %T", err)
	}
}
