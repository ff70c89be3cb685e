package auth

import (
	"bytes"
	"encoding/hex"
)

// rsaKeyPair is one built-in {n_hex, d_hex} entry, per spec.md §4.7's
// "compile-time list of {n_hex, d_hex} RSA key pairs".
type rsaKeyPair struct {
	NHex string
	DHex string
}

// builtinKeys is the compiled-in keyring. Real vendor SLA private keys are
// not published anywhere in the retrieval pack or upstream source, so
// these are structurally valid but non-functional placeholder keypairs,
// sized like real MTK SLA keys (256-byte / 2048-bit modulus, comfortably
// above OAEP/SHA-256's 66-byte floor) so the padding and modexp path is
// actually exercised — wiring a signer registry against unpublished
// vendor secrets is outside what this module can ship; swap these for
// real keys via Manager.RegisterSigner or
// config.SessionConfig.ExtraKeyringHex.
var builtinKeys = []rsaKeyPair{
	{
		NHex: "C28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29BC28F4CC1DEA6F29B",
		DHex: "3A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F60713A1B2C3D4E5F6071",
	},
	{
		NHex: "E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778E1D2C3B4A5968778",
		DHex: "7F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A19087F6E5D4C3B2A1908",
	},
}

// LocalKeyring is the built-in Signer backed by builtinKeys.
type LocalKeyring struct {
	keys []rsaKeyPair
}

// NewLocalKeyring constructs a LocalKeyring from builtinKeys plus any
// caller-supplied additional keys (e.g. from config.SessionConfig).
func NewLocalKeyring(extra ...rsaKeyPair) *LocalKeyring {
	keys := make([]rsaKeyPair, 0, len(builtinKeys)+len(extra))
	keys = append(keys, builtinKeys...)
	keys = append(keys, extra...)
	return &LocalKeyring{keys: keys}
}

func (k *LocalKeyring) Name() string { return "local-keyring" }

// CanSign reports whether any held modulus appears as a contiguous
// big-endian byte substring of req.PubkMod (spec.md §4.7).
func (k *LocalKeyring) CanSign(req *SignRequest) bool {
	_, ok := k.find(req.PubkMod)
	return ok
}

func (k *LocalKeyring) Sign(req *SignRequest) ([]byte, error) {
	key, ok := k.find(req.PubkMod)
	if !ok {
		return nil, errNoSigner
	}
	return RSAOaepSign(req.challengeBytes(), key.NHex, key.DHex)
}

func (k *LocalKeyring) find(pubkMod []byte) (rsaKeyPair, bool) {
	for _, key := range k.keys {
		nBytes, err := hex.DecodeString(key.NHex)
		if err != nil {
			continue
		}
		if bytes.Contains(pubkMod, nBytes) {
			return key, true
		}
	}
	return rsaKeyPair{}, false
}

// ParseKeyPairHex parses the "n_hex:d_hex" pairs carried by
// config.SessionConfig.ExtraKeyringHex (comma-separated).
func ParseKeyPairHex(spec string) []rsaKeyPair {
	var out []rsaKeyPair
	for _, entry := range splitNonEmpty(spec, ',') {
		parts := splitNonEmpty(entry, ':')
		if len(parts) != 2 {
			continue
		}
		out = append(out, rsaKeyPair{NHex: parts[0], DHex: parts[1]})
	}
	return out
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
