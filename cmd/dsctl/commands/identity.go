package commands

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/models"
)

const identityFile = "identity.json"

// identity is the local account state kept under --home
type identity struct {
	Account          string            `json:"account"`
	WalletKey        string            `json:"walletKey"`     // hex secp256k1
	SigningKey       string            `json:"signingKey"`    // base64 ed25519
	EncryptionKey    string            `json:"encryptionKey"` // base64 x25519
	DeliveryServices []string          `json:"deliveryServices"`
	Tokens           map[string]string `json:"tokens,omitempty"`
}

func identityPath() string {
	return filepath.Join(home, identityFile)
}

func loadIdentity() (*identity, error) {
	data, err := os.ReadFile(identityPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no identity in %s, run keygen first", home)
	}
	if err != nil {
		return nil, err
	}
	var id identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("corrupt identity: %w", err)
	}
	if id.Tokens == nil {
		id.Tokens = make(map[string]string)
	}
	return &id, nil
}

func (id *identity) save() error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(identityPath(), data, 0o600)
}

func (id *identity) wallet() (*ecdsa.PrivateKey, error) {
	return ethcrypto.HexToECDSA(id.WalletKey)
}

func (id *identity) signing() (ed25519.PrivateKey, error) {
	return crypto.DecodeSigningKey(id.SigningKey)
}

func (id *identity) encryption() (*[32]byte, error) {
	return crypto.DecodeEncryptionKey(id.EncryptionKey)
}

// profile derives the public profile from the stored keys
func (id *identity) profile() (models.UserProfile, error) {
	signing, err := id.signing()
	if err != nil {
		return models.UserProfile{}, err
	}
	enc, err := id.encryption()
	if err != nil {
		return models.UserProfile{}, err
	}
	encPub, err := crypto.EncryptionPublicKey(enc)
	if err != nil {
		return models.UserProfile{}, err
	}
	return models.UserProfile{
		DeliveryServices:    id.DeliveryServices,
		PublicEncryptionKey: crypto.EncodeKey(encPub[:]),
		PublicSigningKey:    crypto.EncodeKey(signing.Public().(ed25519.PublicKey)),
	}, nil
}

func (id *identity) token(ds string) string {
	return id.Tokens[ds]
}
