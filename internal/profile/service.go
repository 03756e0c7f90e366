// Package profile handles profile publication, lookup and the pending
// conversation bridge.
package profile

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/relayerr"
	"github.com/xelth-com/dsrelay/internal/spam"
	"github.com/xelth-com/dsrelay/internal/store"
	"github.com/xelth-com/dsrelay/internal/websocket"
)

// TokenIssuer mints the first token of a fresh session
type TokenIssuer interface {
	IssueToken(session *models.Session) (string, error)
}

// Resolver normalizes identities and maps them to wallet addresses
type Resolver interface {
	Normalize(identity string) (string, error)
	ResolveAddress(ctx context.Context, identity string) (common.Address, error)
}

// Signaler notifies a live push channel
type Signaler interface {
	Signal(socketID string, event websocket.Event) error
}

// Storage is the subset of the store the service needs
type Storage interface {
	store.SessionStore
	LoadPending(ctx context.Context, account string) ([]string, error)
	ClearPending(ctx context.Context, account string) error
	AddPending(ctx context.Context, account, contact string) error
}

// Service implements profile submission and the pending sweep
type Service struct {
	store    Storage
	tokens   TokenIssuer
	resolver Resolver
	signal   Signaler

	// AllowOverwrite skips the existing-session check on submission
	AllowOverwrite bool
}

// NewService wires a Service
func NewService(st Storage, tokens TokenIssuer, resolver Resolver, signal Signaler) *Service {
	return &Service{store: st, tokens: tokens, resolver: resolver, signal: signal}
}

// SubmitUserProfile verifies the wallet signature on signed, creates a fresh
// session holding it and a new token, then signals pending contacts. It returns
// the new token.
func (s *Service) SubmitUserProfile(ctx context.Context, account string, signed models.SignedUserProfile) (string, error) {
	account, err := s.resolver.Normalize(account)
	if err != nil {
		return "", fmt.Errorf("%w: %v", relayerr.ErrProfileInvalid, err)
	}

	if err := s.verify(ctx, account, signed); err != nil {
		return "", err
	}

	if !s.AllowOverwrite {
		existing, err := s.store.GetSession(ctx, account)
		if err != nil {
			return "", err
		}
		// A session opened only by a challenge holds no profile yet
		if existing != nil {
			if _, ok, _ := existing.Profile(); ok {
				return "", fmt.Errorf("%w: %s", relayerr.ErrProfileExists, account)
			}
		}
	}

	session := models.NewSession(account)
	if err := session.SetProfile(signed); err != nil {
		return "", err
	}
	token, err := s.tokens.IssueToken(session)
	if err != nil {
		return "", err
	}
	if err := s.store.SetSession(ctx, session); err != nil {
		return "", err
	}
	log.Printf("👤 Profile published for %s", account)

	s.sweepPending(ctx, account)
	return token, nil
}

// verify checks that the account's wallet signed the canonical profile
func (s *Service) verify(ctx context.Context, account string, signed models.SignedUserProfile) error {
	p := signed.Profile
	if p.PublicSigningKey == "" || p.PublicEncryptionKey == "" || len(p.DeliveryServices) == 0 {
		return fmt.Errorf("%w: incomplete profile", relayerr.ErrProfileInvalid)
	}
	if _, err := crypto.DecodeEncryptionKey(p.PublicEncryptionKey); err != nil {
		return fmt.Errorf("%w: encryption key: %v", relayerr.ErrProfileInvalid, err)
	}

	expected, err := s.resolver.ResolveAddress(ctx, account)
	if err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrProfileInvalid, err)
	}

	msg, err := p.Canonical()
	if err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrProfileInvalid, err)
	}
	signer, err := crypto.RecoverPersonalSign(msg, signed.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrProfileInvalid, err)
	}
	if signer != expected {
		return fmt.Errorf("%w: signed by %s, expected %s", relayerr.ErrProfileInvalid, signer.Hex(), expected.Hex())
	}
	return nil
}

// sweepPending signals every waiting contact that is online and consumes the
// pending set. Failures are logged; the profile is already published.
func (s *Service) sweepPending(ctx context.Context, account string) {
	contacts, err := s.store.LoadPending(ctx, account)
	if err != nil {
		log.Printf("profile: load pending for %s failed: %v", account, err)
		return
	}
	if len(contacts) == 0 {
		return
	}

	for _, contact := range contacts {
		session, err := s.store.GetSession(ctx, contact)
		if err != nil || session == nil || !session.Online() || s.signal == nil {
			continue
		}
		if err := s.signal.Signal(session.SocketID, websocket.Event{Type: websocket.EventJoined, Account: account}); err != nil {
			log.Printf("profile: signal %s about %s failed: %v", contact, account, err)
		}
	}

	if err := s.store.ClearPending(ctx, account); err != nil {
		log.Printf("profile: clear pending for %s failed: %v", account, err)
	}
}

// GetUserProfile returns the published profile of account
func (s *Service) GetUserProfile(ctx context.Context, account string) (*models.SignedUserProfile, error) {
	account, err := s.resolver.Normalize(account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", relayerr.ErrUnknownSession, err)
	}
	session, err := s.store.GetSession(ctx, account)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", relayerr.ErrUnknownSession, account)
	}
	p, ok, err := session.Profile()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s has no profile", relayerr.ErrUnknownSession, account)
	}
	return &p, nil
}

// AddPending records that contact is waiting for account to publish a profile
func (s *Service) AddPending(ctx context.Context, account, contact string) error {
	account, err := s.resolver.Normalize(account)
	if err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrInvalidRequest, err)
	}
	contact, err = s.resolver.Normalize(contact)
	if err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrInvalidRequest, err)
	}
	if account == contact {
		return fmt.Errorf("%w: %s cannot wait for itself", relayerr.ErrInvalidRequest, account)
	}
	return s.store.AddPending(ctx, account, contact)
}

// SetSpamFilterRules replaces the rules on account's session. Nil clears them.
func (s *Service) SetSpamFilterRules(ctx context.Context, account string, rules *models.SpamFilterRules) error {
	if err := spam.Validate(rules); err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrInvalidRequest, err)
	}
	account, err := s.resolver.Normalize(account)
	if err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrInvalidRequest, err)
	}
	var scratch models.Session
	if err := scratch.SetRules(rules); err != nil {
		return err
	}
	ok, err := s.store.SetSpamFilterRules(ctx, account, scratch.SpamFilterRules)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", relayerr.ErrUnknownSession, account)
	}
	return nil
}
