package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// BoxVersion tags the sealed-box format
const BoxVersion = "x25519-xsalsa20-poly1305"

// ErrOpen is returned when a sealed box cannot be opened
var ErrOpen = errors.New("cannot open sealed box")

// EncryptedPayload is the JSON form of a sealed box. The sender key is
// ephemeral, so only the recipient can open it.
type EncryptedPayload struct {
	Version        string `json:"version"`
	Nonce          string `json:"nonce"`
	EphemPublicKey string `json:"ephemPublicKey"`
	Ciphertext     string `json:"ciphertext"`
}

// GenerateEncryptionKey returns a new x25519 key pair
func GenerateEncryptionKey() (pub, priv *[32]byte, err error) {
	return box.GenerateKey(rand.Reader)
}

// EncryptionPublicKey derives the x25519 public key of priv
func EncryptionPublicKey(priv *[32]byte) (*[32]byte, error) {
	pb, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	var pub [32]byte
	copy(pub[:], pb)
	return &pub, nil
}

// DecodeEncryptionKey parses a base64 32-byte x25519 key
func DecodeEncryptionKey(b64 string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid encryption key size %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// Encrypt seals plaintext for the holder of recipientPublicKey (base64) and
// returns the JSON-encoded EncryptedPayload.
func Encrypt(recipientPublicKey string, plaintext []byte) (string, error) {
	peer, err := DecodeEncryptionKey(recipientPublicKey)
	if err != nil {
		return "", err
	}

	ephemPub, ephemPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := box.Seal(nil, plaintext, &nonce, peer, ephemPriv)

	out, err := json.Marshal(EncryptedPayload{
		Version:        BoxVersion,
		Nonce:          base64.StdEncoding.EncodeToString(nonce[:]),
		EphemPublicKey: base64.StdEncoding.EncodeToString(ephemPub[:]),
		Ciphertext:     base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decrypt opens a JSON-encoded EncryptedPayload with priv
func Decrypt(priv *[32]byte, payload string) ([]byte, error) {
	var p EncryptedPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if p.Version != BoxVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrOpen, p.Version)
	}

	nonceBytes, err := base64.StdEncoding.DecodeString(p.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, fmt.Errorf("%w: bad nonce", ErrOpen)
	}
	ephem, err := DecodeEncryptionKey(p.EphemPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrOpen)
	}

	var nonce [24]byte
	copy(nonce[:], nonceBytes)

	plain, ok := box.Open(nil, sealed, &nonce, ephem, priv)
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}
