// Package identity handles loading, generating, and persisting account and
// node keypairs (ED25519). Key files are PEM encoded PKCS8 with 0600
// permissions. The hex encoded public key doubles as the ledger address.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Identity signs for one account. It satisfies types.Signer.
type Identity struct {
	priv ed25519.PrivateKey
}

// NewIdentity wraps an existing private key.
func NewIdentity(priv ed25519.PrivateKey) *Identity {
	return &Identity{priv: priv}
}

func (i *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(i.priv, message)
}

// Verify reports whether signature is this identity's signature of message.
func (i *Identity) Verify(message, signature []byte) bool {
	return ed25519.Verify(i.PublicKey(), message, signature)
}

// PublicKey is derived from the private key on each call; ed25519 keeps it
// in the second half of the key.
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.priv.Public().(ed25519.PublicKey)
}

// PublicKeyHex is the account address in string form.
func (i *Identity) PublicKeyHex() string {
	return hex.EncodeToString(i.PublicKey())
}

// ErrKeyExists is returned by Generate when the target file already holds a key.
var ErrKeyExists = errors.New("key file already exists")

// LoadOrCreateIdentity loads the key at keyPath, generating and saving a new
// one when the file is missing or empty.
func LoadOrCreateIdentity(keyPath string) (*Identity, error) {
	info, err := os.Stat(keyPath)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		priv, err := generateAndSaveKeyPair(keyPath)
		if err != nil {
			return nil, err
		}
		return NewIdentity(priv), nil
	}
	if err != nil {
		return nil, err
	}
	return Load(keyPath)
}

// Load reads an existing key file. It never creates one.
func Load(keyPath string) (*Identity, error) {
	priv, err := loadKeyPair(keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", keyPath, err)
	}
	return NewIdentity(priv), nil
}

// Generate writes a fresh key to keyPath and refuses to overwrite a
// non-empty file.
func Generate(keyPath string) (*Identity, error) {
	if info, err := os.Stat(keyPath); err == nil && info.Size() > 0 {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, keyPath)
	}
	priv, err := generateAndSaveKeyPair(keyPath)
	if err != nil {
		return nil, err
	}
	return NewIdentity(priv), nil
}

func generateAndSaveKeyPair(keyPath string) (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: "PRIVATE KEY", Bytes: der}); err != nil {
		return nil, err
	}
	return priv, nil
}

func loadKeyPair(keyPath string) (ed25519.PrivateKey, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to decode PEM block from key file")
	}

	genericKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	priv, ok := genericKey.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("key is not an ed25519 private key")
	}
	return priv, nil
}
