package models

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
)

// Session is the per-account state held by the delivery service.
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type Session struct {
	Account           string         `gorm:"primaryKey" json:"account"`
	SignedUserProfile datatypes.JSON `json:"signedUserProfile,omitempty"`
	Challenge         string         `json:"challenge,omitempty"`
	Token             string         `json:"token,omitempty"`

	// TokenCreatedAt is the mint time of the current token in milliseconds.
	// Tokens issued before it are rejected.
	TokenCreatedAt  int64          `gorm:"column:token_created_at" json:"createdAt"`
	SocketID        string         `json:"socketId,omitempty"`
	SpamFilterRules datatypes.JSON `json:"spamFilterRules,omitempty"`
}

// TableName specifies the table name for Session model
func (Session) TableName() string {
	return "sessions"
}

// NewSession returns an empty session for a normalized account
func NewSession(account string) *Session {
	return &Session{Account: account}
}

// Profile decodes the stored signed profile. ok is false when none was submitted.
func (s *Session) Profile() (SignedUserProfile, bool, error) {
	var p SignedUserProfile
	if len(s.SignedUserProfile) == 0 || string(s.SignedUserProfile) == "null" {
		return p, false, nil
	}
	if err := json.Unmarshal(s.SignedUserProfile, &p); err != nil {
		return p, false, err
	}
	return p, true, nil
}

// SetProfile stores the signed profile as JSON
func (s *Session) SetProfile(p SignedUserProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.SignedUserProfile = datatypes.JSON(raw)
	return nil
}

// Rules decodes the spam filter rules; nil means accept everything
func (s *Session) Rules() (*SpamFilterRules, error) {
	if len(s.SpamFilterRules) == 0 || string(s.SpamFilterRules) == "null" {
		return nil, nil
	}
	var r SpamFilterRules
	if err := json.Unmarshal(s.SpamFilterRules, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetRules stores spam filter rules; nil clears them
func (s *Session) SetRules(r *SpamFilterRules) error {
	if r == nil {
		s.SpamFilterRules = nil
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.SpamFilterRules = datatypes.JSON(raw)
	return nil
}

// Online reports whether a push channel is attached
func (s *Session) Online() bool {
	return strings.TrimSpace(s.SocketID) != ""
}

// SpamFilterRules is the recipient-declared acceptance policy.
// Every present rule must pass for a message to be accepted.
type SpamFilterRules struct {
	MinNonce        *uint64          `json:"minNonce,omitempty"`
	MinBalance      string           `json:"minBalance,omitempty"` // wei, decimal
	MinTokenBalance *MinTokenBalance `json:"minTokenBalance,omitempty"`
}

// MinTokenBalance requires the sender to hold an ERC-20 amount
type MinTokenBalance struct {
	Address string `json:"address"`
	Amount  string `json:"amount"` // base units, decimal
}

// Empty reports whether no rule is set
func (r *SpamFilterRules) Empty() bool {
	return r == nil || (r.MinNonce == nil && r.MinBalance == "" && r.MinTokenBalance == nil)
}
