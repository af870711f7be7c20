// Package identity decides who may bind a session and who may write through it.
//
// A root identity binds a session by presenting a proof that it authorizes a
// session authority. After that, every write attributed to the root must be
// signed by the session authority. Signature checking sits behind Verifier so
// the engine does not depend on a particular scheme; Ed25519Verifier is the
// scheme the CLI uses.
package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/dyluth/tessera/internal/codec"
	"github.com/dyluth/tessera/pkg/canvas"
)

// proofDomain prefixes every signed authorization so a signature made for
// this purpose cannot be replayed as anything else.
const proofDomain = "tessera.session-authority.v1\x00"

// Certificate is what a verified proof attests: Identity authorizes Authorized
// to write on its behalf.
type Certificate struct {
	Identity   canvas.Identity
	Authorized canvas.Identity
}

// Verifier checks a session binding proof. Implementations must fail closed:
// any proof they cannot fully verify returns an error.
type Verifier interface {
	Verify(proof []byte) (*Certificate, error)
}

// Proof is the wire form of an Ed25519 binding proof.
type Proof struct {
	Signer     []byte          `cbor:"1,keyasint"`
	Authorized canvas.Identity `cbor:"2,keyasint"`
	Signature  []byte          `cbor:"3,keyasint"`
}

// MakeProof signs an authorization of authority with the root's private key.
func MakeProof(root ed25519.PrivateKey, authority canvas.Identity) ([]byte, error) {
	if len(root) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key has %d bytes, want %d", len(root), ed25519.PrivateKeySize)
	}
	if err := authority.Validate(); err != nil {
		return nil, fmt.Errorf("invalid authority: %w", err)
	}

	proof := Proof{
		Signer:     []byte(root.Public().(ed25519.PublicKey)),
		Authorized: authority,
		Signature:  ed25519.Sign(root, signedMessage(authority)),
	}
	data, err := codec.Marshal(&proof)
	if err != nil {
		return nil, fmt.Errorf("encoding proof: %w", err)
	}
	return data, nil
}

// Ed25519Verifier verifies proofs produced by MakeProof.
type Ed25519Verifier struct{}

// Verify decodes and checks an Ed25519 proof.
func (Ed25519Verifier) Verify(data []byte) (*Certificate, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing proof", canvas.ErrInvalidAuth)
	}

	var proof Proof
	if err := codec.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("%w: malformed proof: %v", canvas.ErrInvalidAuth, err)
	}
	if len(proof.Signer) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: signer key has %d bytes, want %d",
			canvas.ErrInvalidAuth, len(proof.Signer), ed25519.PublicKeySize)
	}
	if err := proof.Authorized.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", canvas.ErrInvalidAuth, err)
	}
	if !ed25519.Verify(ed25519.PublicKey(proof.Signer), signedMessage(proof.Authorized), proof.Signature) {
		return nil, fmt.Errorf("%w: bad signature", canvas.ErrInvalidAuth)
	}

	return &Certificate{
		Identity:   canvas.IdentityFromPublicKey(proof.Signer),
		Authorized: proof.Authorized,
	}, nil
}

func signedMessage(authority canvas.Identity) []byte {
	msg := make([]byte, 0, len(proofDomain)+len(authority))
	msg = append(msg, proofDomain...)
	return append(msg, authority...)
}
