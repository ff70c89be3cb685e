package auth

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/tommynok/penumbra/internal/perr"
)

// RemoteSigner dispatches a SignRequest to a signing oracle reachable over
// SSH, for the keyring layouts that keep SLA private exponents off the
// flashing host entirely and behind a hardened jump box instead. It holds
// no key material itself; CanSign only reports whether the ModulusHex bytes
// occur inside the request's PubkMod, the same way LocalKeyring does.
//
// The dial and error-classification shape mirrors the teacher's
// internal/analyzer/analyzer.go checkSSH: a failed ssh.Dial whose error
// text contains "unable to authenticate" means the transport reached the
// host and the credentials were rejected, everything else is a connection
// failure the caller should retry or fail over on (spec.md §9 "unsupported
// or unreachable signer should fail clearly, not silently pick a wrong
// key").
type RemoteSigner struct {
	Addr         string
	ModulusHex   string
	ClientConfig *ssh.ClientConfig
	Command      func(challengeHex string) string
	Timeout      time.Duration
}

// NewRemoteSigner builds a RemoteSigner that authenticates with a
// password and runs signCmd (formatted with the hex-encoded challenge as
// its single %s verb) over an SSH exec session, printing the hex-encoded
// signature to stdout.
func NewRemoteSigner(addr, user, password, modulusHex, signCmd string) *RemoteSigner {
	return &RemoteSigner{
		Addr:       addr,
		ModulusHex: strings.ToLower(modulusHex),
		ClientConfig: &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.Password(password)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         10 * time.Second,
		},
		Command: func(challengeHex string) string {
			return fmt.Sprintf(signCmd, challengeHex)
		},
		Timeout: 10 * time.Second,
	}
}

func (r *RemoteSigner) Name() string { return "remote:" + r.Addr }

func (r *RemoteSigner) CanSign(req *SignRequest) bool {
	nBytes, err := hex.DecodeString(r.ModulusHex)
	if err != nil || len(nBytes) == 0 {
		return false
	}
	return bytes.Contains(req.PubkMod, nBytes)
}

// Sign dials r.Addr, runs the configured signing command with the
// challenge bytes hex-encoded as its argument, and decodes the command's
// stdout as the hex-encoded signature.
func (r *RemoteSigner) Sign(req *SignRequest) ([]byte, error) {
	client, err := ssh.Dial("tcp", r.Addr, r.ClientConfig)
	if err != nil {
		return nil, classifyDialError(r.Addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, perr.NewConnection(fmt.Sprintf("remote signer %s: open session: %v", r.Addr, err))
	}
	defer session.Close()

	challengeHex := hex.EncodeToString(req.challengeBytes())
	out, err := session.Output(r.Command(challengeHex))
	if err != nil {
		return nil, perr.Penumbra("remote signer %s: sign command failed: %v", r.Addr, err)
	}

	sig, err := hex.DecodeString(strings.TrimSpace(string(out)))
	if err != nil {
		return nil, perr.Penumbra("remote signer %s: malformed signature output: %v", r.Addr, err)
	}
	return sig, nil
}

// classifyDialError turns an ssh.Dial failure into the right perr kind:
// the host rejecting our credentials is a configuration problem
// (PenumbraError, the caller should fix the keyring and retry), anything
// else — DNS, refused, timeout — is a dead signer (ConnectionError, the
// caller should fail over to another registered Signer).
func classifyDialError(addr string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"):
		return perr.Penumbra("remote signer %s: credentials rejected: %v", addr, err)
	case isNetTimeoutOrRefused(err):
		return perr.NewConnection(fmt.Sprintf("remote signer %s unreachable: %v", addr, err))
	default:
		return perr.NewConnection(fmt.Sprintf("remote signer %s: dial failed: %v", addr, err))
	}
}

func isNetTimeoutOrRefused(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

var _ Signer = (*RemoteSigner)(nil)
