package identity

import (
	"fmt"
	"time"

	"github.com/dyluth/tessera/pkg/canvas"
)

// Manager turns verified proofs into session records and gates writes.
// It holds no state; storing the record is the caller's job.
type Manager struct {
	verifier Verifier
}

// NewManager creates a Manager using verifier for session proofs.
func NewManager(verifier Verifier) *Manager {
	return &Manager{verifier: verifier}
}

// NewSession checks that proof certifies root authorizing authority and
// returns a fresh durable session record with zero counters.
func (m *Manager) NewSession(root, authority canvas.Identity, proof []byte, now time.Time) (*canvas.SessionRecord, error) {
	if err := root.Validate(); err != nil {
		return nil, fmt.Errorf("%w: root: %v", canvas.ErrInvalidAuth, err)
	}
	if err := authority.Validate(); err != nil {
		return nil, fmt.Errorf("%w: authority: %v", canvas.ErrInvalidAuth, err)
	}

	cert, err := m.verifier.Verify(proof)
	if err != nil {
		return nil, err
	}
	if cert.Identity != root {
		return nil, fmt.Errorf("%w: proof is signed by %s, not %s", canvas.ErrInvalidAuth, cert.Identity, root)
	}
	if cert.Authorized != authority {
		return nil, fmt.Errorf("%w: proof authorizes %s, not %s", canvas.ErrInvalidAuth, cert.Authorized, authority)
	}

	return &canvas.SessionRecord{
		RootIdentity:     root,
		SessionAuthority: authority,
		Tier:             canvas.TierDurable,
		CreatedAtMs:      now.UnixMilli(),
	}, nil
}

// AuthorizeWrite fails with canvas.ErrInvalidAuth unless signer is the
// session's authority.
func (m *Manager) AuthorizeWrite(session *canvas.SessionRecord, signer canvas.Identity) error {
	if signer == "" || signer != session.SessionAuthority {
		return fmt.Errorf("%w: %s is not the session authority of %s", canvas.ErrInvalidAuth, signer, session.RootIdentity)
	}
	return nil
}
