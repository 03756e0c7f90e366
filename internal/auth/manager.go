// Package auth implements the delivery service session state machine:
// challenge issuance, challenge-signature verification, bearer token minting
// and token checks.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/relayerr"
	"github.com/xelth-com/dsrelay/internal/resolver"
	"github.com/xelth-com/dsrelay/internal/store"
)

// DefaultTokenTTL is used when no TTL is configured
const DefaultTokenTTL = time.Hour

// Manager issues challenges and session tokens for accounts
type Manager struct {
	sessions store.SessionStore
	secret   []byte
	ttl      time.Duration

	// Now is the clock used for minting and checking tokens
	Now func() time.Time
}

// NewManager creates a Manager signing tokens with secret
func NewManager(sessions store.SessionStore, secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Manager{
		sessions: sessions,
		secret:   []byte(secret),
		ttl:      ttl,
		Now:      time.Now,
	}
}

// CreateChallenge issues a fresh challenge for account, replacing any earlier
// one. A session is created if the account has none.
func (m *Manager) CreateChallenge(ctx context.Context, account string) (string, error) {
	account, err := resolver.Normalize(account)
	if err != nil {
		return "", fmt.Errorf("%w: %v", relayerr.ErrAuth, err)
	}

	challenge := uuid.NewString()
	if err := m.sessions.SetChallenge(ctx, account, challenge); err != nil {
		return "", err
	}
	return challenge, nil
}

// CreateNewSessionToken exchanges a signed challenge for a session token.
// The signature must be made with the account's published signing key over
// the exact challenge string stored on the session.
func (m *Manager) CreateNewSessionToken(ctx context.Context, account, signature, challenge string) (string, error) {
	account, err := resolver.Normalize(account)
	if err != nil {
		return "", fmt.Errorf("%w: %v", relayerr.ErrAuth, err)
	}

	session, err := m.sessions.GetSession(ctx, account)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", fmt.Errorf("%w: no session", relayerr.ErrAuth)
	}
	if session.Challenge == "" || subtle.ConstantTimeCompare([]byte(session.Challenge), []byte(challenge)) != 1 {
		return "", fmt.Errorf("%w: challenge mismatch", relayerr.ErrAuth)
	}

	profile, ok, err := session.Profile()
	if err != nil || !ok {
		return "", fmt.Errorf("%w: no profile", relayerr.ErrAuth)
	}
	valid, err := crypto.VerifySignature(profile.Profile.PublicSigningKey, []byte(challenge), signature)
	if err != nil || !valid {
		return "", fmt.Errorf("%w: bad signature", relayerr.ErrAuth)
	}

	token, err := m.IssueToken(session)
	if err != nil {
		return "", err
	}
	// single use: a concurrent exchange of the same challenge loses here
	ok, err = m.sessions.ConsumeChallenge(ctx, account, challenge, token, session.TokenCreatedAt)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: challenge already used", relayerr.ErrAuth)
	}
	return token, nil
}

// IssueToken mints a token for the session and records it and its mint time
// on the session. The caller persists the session.
func (m *Manager) IssueToken(session *models.Session) (string, error) {
	now := m.Now().Truncate(time.Second)
	token, err := generateToken(session.Account, now, m.ttl, m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	session.Token = token
	session.TokenCreatedAt = now.Unix() * 1000
	return token, nil
}

// CheckToken reports whether token is the current, valid token of account.
// It never returns an error; every failure is a plain false.
func (m *Manager) CheckToken(ctx context.Context, account, token string) bool {
	account, err := resolver.Normalize(account)
	if err != nil {
		return false
	}

	session, err := m.sessions.GetSession(ctx, account)
	if err != nil {
		log.Printf("auth: session lookup for %s failed: %v", account, err)
		return false
	}
	if session == nil {
		return m.reject(account, "no session")
	}
	if session.Token == "" {
		return m.reject(account, "no stored token")
	}
	if subtle.ConstantTimeCompare([]byte(session.Token), []byte(token)) != 1 {
		return m.reject(account, "not the current token")
	}

	iat, err := validateToken(token, account, m.Now(), m.secret)
	if err != nil {
		return m.reject(account, err.Error())
	}
	if iat.Unix() < session.TokenCreatedAt/1000 {
		return m.reject(account, "issued before last token rotation")
	}
	return true
}

// reject logs why a token failed; callers only ever see false
func (m *Manager) reject(account, reason string) bool {
	log.Printf("auth: token rejected for %s: %s", account, reason)
	return false
}
