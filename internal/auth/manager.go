package auth

import (
	"sync"

	"github.com/tommynok/penumbra/internal/perr"
)

// Purpose distinguishes the two SLA challenges the device can issue
// (spec.md §3 SignRequest).
type Purpose int

const (
	PurposeBromSla Purpose = iota
	PurposeDaSla
)

// SignRequest is the transient challenge a Signer consumes exactly once
// (spec.md §3).
type SignRequest struct {
	Rnd     []byte
	SocID   []byte
	HRID    []byte
	Raw     []byte
	Purpose Purpose
	PubkMod []byte
}

// challengeBytes is the material actually fed to the OAEP padding step:
// rnd concatenated with soc_id and hrid, matching the vendor challenge
// layout recovered from original_source/core/src/core/auth/sla.rs.
func (r *SignRequest) challengeBytes() []byte {
	out := make([]byte, 0, len(r.Rnd)+len(r.SocID)+len(r.HRID))
	out = append(out, r.Rnd...)
	out = append(out, r.SocID...)
	out = append(out, r.HRID...)
	return out
}

// Signer is anything the AuthManager can dispatch a SignRequest to.
type Signer interface {
	Name() string
	CanSign(req *SignRequest) bool
	Sign(req *SignRequest) ([]byte, error)
}

var errNoSigner = perr.Penumbra("Could not find any signer")

// Manager is the process-wide, append-only Signer registry
// (spec.md §4.7, §5).
type Manager struct {
	mu      sync.RWMutex
	signers []Signer
}

var (
	globalOnce    sync.Once
	globalManager *Manager
)

// Global returns the process-wide AuthManager, seeded on first access with
// a LocalKeyring (spec.md §4.7, §9 "singleton initialised on first access").
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.RegisterSigner(NewLocalKeyring())
	})
	return globalManager
}

// NewManager constructs an empty Manager. Most callers should use Global;
// an explicit Manager is equally acceptable per spec.md §9 and is useful
// for tests that must not share state with other tests.
func NewManager() *Manager {
	return &Manager{}
}

// RegisterSigner appends a Signer under the write lock. The registry is
// append-only for the process lifetime (spec.md §3, §5).
func (m *Manager) RegisterSigner(s Signer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signers = append(m.signers, s)
}

// CanSign reports whether some registered Signer holds a matching key.
func (m *Manager) CanSign(req *SignRequest) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.signers {
		if s.CanSign(req) {
			return true
		}
	}
	return false
}

// Sign dispatches req to the first registered Signer that reports it can
// handle it. A missing signer is reported as a PenumbraError rather than a
// cryptographic failure, because the correct remedy is registering another
// signer (spec.md §4.7).
func (m *Manager) Sign(req *SignRequest) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.signers {
		if s.CanSign(req) {
			return s.Sign(req)
		}
	}
	return nil, errNoSigner
}
