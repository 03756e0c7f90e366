package models

import "encoding/json"

// UserProfile is the discoverable part of an account.
// Field order is alphabetical so the JSON encoding is canonical.
type UserProfile struct {
	DeliveryServices    []string `json:"deliveryServices"`
	PublicEncryptionKey string   `json:"publicEncryptionKey"`
	PublicSigningKey    string   `json:"publicSigningKey"`
}

// Canonical returns the byte string that the wallet signs
func (p UserProfile) Canonical() ([]byte, error) {
	if p.DeliveryServices == nil {
		p.DeliveryServices = []string{}
	}
	return json.Marshal(p)
}

// SignedUserProfile couples a profile with the owner's wallet signature
type SignedUserProfile struct {
	Profile   UserProfile `json:"profile"`
	Signature string      `json:"signature"` // 0x-prefixed 65 byte personal_sign signature
}

// DeliveryServiceProfile is what a delivery-service identity resolves to
type DeliveryServiceProfile struct {
	PublicSigningKey    string `json:"publicSigningKey" yaml:"publicSigningKey"`
	PublicEncryptionKey string `json:"publicEncryptionKey" yaml:"publicEncryptionKey"`
	URL                 string `json:"url" yaml:"url"`
}
