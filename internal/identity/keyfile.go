package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/mr-tron/base58"
)

// KeyPair is an Ed25519 identity held by a client.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// keyFile is the on-disk JSON form of a KeyPair.
type keyFile struct {
	Identity   canvas.Identity `json:"identity"`
	PrivateKey string          `json:"private_key"`
}

// GenerateKeyPair creates a new Ed25519 identity.
func GenerateKeyPair() (*KeyPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return &KeyPair{Public: public, Private: private}, nil
}

// Identity returns the canvas identity of the key's public half.
func (k *KeyPair) Identity() canvas.Identity {
	return canvas.IdentityFromPublicKey(k.Public)
}

// SaveKeyPair writes the keypair to path with 0600 permissions.
// Fails if path already exists.
func SaveKeyPair(path string, k *KeyPair) error {
	data, err := json.MarshalIndent(keyFile{
		Identity:   k.Identity(),
		PrivateKey: base58.Encode(k.Private),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding key file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating key file: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("writing key file: %w", err)
	}
	return f.Close()
}

// LoadKeyPair reads a key file written by SaveKeyPair and checks that its
// identity matches its private key.
func LoadKeyPair(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parsing key file %s: %w", path, err)
	}

	raw, err := base58.Decode(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key has %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}

	private := ed25519.PrivateKey(raw)
	k := &KeyPair{Public: private.Public().(ed25519.PublicKey), Private: private}
	if k.Identity() != kf.Identity {
		return nil, fmt.Errorf("key file %s: identity %s does not match private key", path, kf.Identity)
	}
	return k, nil
}
