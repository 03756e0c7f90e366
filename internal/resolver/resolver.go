// Package resolver turns account and delivery-service identities into
// canonical names, wallet addresses and delivery-service profiles.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/xelth-com/dsrelay/internal/models"
)

// ErrNotFound is returned when an identity is unknown to the resolver
var ErrNotFound = errors.New("identity not found")

// Resolver is the name/profile lookup the core depends on
type Resolver interface {
	Normalize(identity string) (string, error)
	ResolveAddress(ctx context.Context, identity string) (common.Address, error)
	ResolveDeliveryServiceProfile(ctx context.Context, identity string) (models.DeliveryServiceProfile, error)
}

// Normalize returns the canonical form of an identity: trimmed and lower-cased.
// Hex addresses are reduced to their 20-byte lower-case form.
func Normalize(identity string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(identity))
	if id == "" {
		return "", fmt.Errorf("empty identity")
	}
	if common.IsHexAddress(id) {
		return strings.ToLower(common.HexToAddress(id).Hex()), nil
	}
	if strings.ContainsAny(id, " ,/\\?#") || strings.IndexFunc(id, invalidRune) >= 0 {
		return "", fmt.Errorf("invalid identity %q", identity)
	}
	return id, nil
}

// invalidRune rejects control and whitespace characters. Identities end up in
// URLs, log lines and mail headers.
func invalidRune(r rune) bool {
	return unicode.IsControl(r) || unicode.IsSpace(r)
}

// addressFromName extracts the address of names shaped <0xaddr>.addr.<suffix>
func addressFromName(name string) (common.Address, bool) {
	labels := strings.Split(name, ".")
	if len(labels) < 3 || labels[1] != "addr" || !common.IsHexAddress(labels[0]) {
		return common.Address{}, false
	}
	return common.HexToAddress(labels[0]), true
}

// directoryFile is the on-disk form of a Directory
type directoryFile struct {
	DeliveryServices map[string]models.DeliveryServiceProfile `json:"deliveryServices" yaml:"deliveryServices"`
	Accounts         map[string]string                        `json:"accounts" yaml:"accounts"`
}

// Directory is a static Resolver backed by a JSON or YAML file
type Directory struct {
	mu       sync.RWMutex
	services map[string]models.DeliveryServiceProfile
	accounts map[string]common.Address
}

// NewDirectory returns an empty Directory
func NewDirectory() *Directory {
	return &Directory{
		services: make(map[string]models.DeliveryServiceProfile),
		accounts: make(map[string]common.Address),
	}
}

// LoadDirectory reads delivery-service profiles and account addresses from
// path. Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func LoadDirectory(path string) (*Directory, error) {
	d := NewDirectory()
	if path == "" {
		return d, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var f directoryFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse directory: %w", err)
	}

	for name, profile := range f.DeliveryServices {
		if err := d.AddDeliveryService(name, profile); err != nil {
			return nil, err
		}
	}
	for name, addr := range f.Accounts {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("account %s: invalid address %q", name, addr)
		}
		if err := d.AddAccount(name, common.HexToAddress(addr)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// AddDeliveryService registers or replaces a delivery-service profile
func (d *Directory) AddDeliveryService(name string, profile models.DeliveryServiceProfile) error {
	id, err := Normalize(name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services[id] = profile
	return nil
}

// AddAccount maps an account name to its wallet address
func (d *Directory) AddAccount(name string, addr common.Address) error {
	id, err := Normalize(name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[id] = addr
	return nil
}

func (d *Directory) Normalize(identity string) (string, error) {
	return Normalize(identity)
}

func (d *Directory) ResolveAddress(_ context.Context, identity string) (common.Address, error) {
	id, err := Normalize(identity)
	if err != nil {
		return common.Address{}, err
	}
	if common.IsHexAddress(id) {
		return common.HexToAddress(id), nil
	}
	if addr, ok := addressFromName(id); ok {
		return addr, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if addr, ok := d.accounts[id]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}

func (d *Directory) ResolveDeliveryServiceProfile(_ context.Context, identity string) (models.DeliveryServiceProfile, error) {
	id, err := Normalize(identity)
	if err != nil {
		return models.DeliveryServiceProfile{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.services[id]
	if !ok {
		return models.DeliveryServiceProfile{}, fmt.Errorf("delivery service %s: %w", id, ErrNotFound)
	}
	return profile, nil
}
