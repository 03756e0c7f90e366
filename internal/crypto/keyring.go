package crypto

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xelth-com/dsrelay/internal/models"
)

// Keyring holds the delivery service's own signing and encryption keys
type Keyring struct {
	SigningKey    ed25519.PrivateKey
	EncryptionKey *[32]byte
	encryptionPub *[32]byte
}

type keyringFile struct {
	SigningKey    string `json:"signing_key"`    // Base64
	EncryptionKey string `json:"encryption_key"` // Base64
}

// NewKeyring builds a keyring from raw keys
func NewKeyring(signing ed25519.PrivateKey, encryption *[32]byte) (*Keyring, error) {
	pub, err := EncryptionPublicKey(encryption)
	if err != nil {
		return nil, err
	}
	return &Keyring{SigningKey: signing, EncryptionKey: encryption, encryptionPub: pub}, nil
}

// GenerateKeyring returns a keyring with fresh keys
func GenerateKeyring() (*Keyring, error) {
	_, signing, err := GenerateSigningKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	_, encryption, err := GenerateEncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return NewKeyring(signing, encryption)
}

// LoadOrGenerateKeyring gives the service stable keys across restarts.
// Explicit base64 keys win, then the key file, and new keys are generated
// and written to the key file if neither exists.
func LoadOrGenerateKeyring(signingB64, encryptionB64, path string) (*Keyring, error) {
	// 1. Explicit keys (Priority)
	if signingB64 != "" && encryptionB64 != "" {
		return keyringFromStrings(signingB64, encryptionB64)
	}

	// 2. Local persistence file
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var f keyringFile
			if err := json.Unmarshal(data, &f); err != nil {
				return nil, fmt.Errorf("corrupt key file %s: %w", path, err)
			}
			return keyringFromStrings(f.SigningKey, f.EncryptionKey)
		}
	}

	// 3. Generate new keys
	kr, err := GenerateKeyring()
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create key dir: %w", err)
		}
		data, _ := json.MarshalIndent(keyringFile{
			SigningKey:    EncodeKey(kr.SigningKey),
			EncryptionKey: EncodeKey(kr.EncryptionKey[:]),
		}, "", "  ")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to persist keys: %w", err)
		}
	}
	return kr, nil
}

func keyringFromStrings(signingB64, encryptionB64 string) (*Keyring, error) {
	signing, err := DecodeSigningKey(signingB64)
	if err != nil {
		return nil, err
	}
	encryption, err := DecodeEncryptionKey(encryptionB64)
	if err != nil {
		return nil, err
	}
	return NewKeyring(signing, encryption)
}

// Decrypt opens a sealed box addressed to the service
func (k *Keyring) Decrypt(payload string) ([]byte, error) {
	return Decrypt(k.EncryptionKey, payload)
}

// Sign signs message with the service signing key
func (k *Keyring) Sign(message []byte) string {
	return Sign(k.SigningKey, message)
}

// PublicSigningKey returns the base64 ed25519 public key
func (k *Keyring) PublicSigningKey() string {
	return EncodeKey(k.SigningKey.Public().(ed25519.PublicKey))
}

// PublicEncryptionKey returns the base64 x25519 public key
func (k *Keyring) PublicEncryptionKey() string {
	return EncodeKey(k.encryptionPub[:])
}

// Profile returns the public profile of the service reachable at url
func (k *Keyring) Profile(url string) models.DeliveryServiceProfile {
	return models.DeliveryServiceProfile{
		PublicSigningKey:    k.PublicSigningKey(),
		PublicEncryptionKey: k.PublicEncryptionKey(),
		URL:                 url,
	}
}
