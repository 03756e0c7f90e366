// Package store defines the persistence contracts of the delivery service and
// provides a gorm (postgres) and an in-memory implementation.
package store

import (
	"context"

	"gorm.io/datatypes"

	"github.com/xelth-com/dsrelay/internal/models"
)

// SessionStore keeps one Session per account. GetSession returns nil, nil
// when the account has no session. SetSession replaces the whole record and
// must be durable on return.
//
// The remaining writes touch only their own columns, so a concurrent token
// rotation is never rolled back by an unrelated update.
type SessionStore interface {
	GetSession(ctx context.Context, account string) (*models.Session, error)
	SetSession(ctx context.Context, session *models.Session) error

	// SetChallenge stores challenge, creating the session if needed
	SetChallenge(ctx context.Context, account, challenge string) error
	// ConsumeChallenge installs token and clears the challenge only while the
	// stored challenge still equals challenge. It reports whether it did.
	ConsumeChallenge(ctx context.Context, account, challenge, token string, tokenCreatedAt int64) (bool, error)
	// AttachSocket records socketID on an existing session
	AttachSocket(ctx context.Context, account, socketID string) error
	// ReleaseSocket clears the socket id if it is still socketID
	ReleaseSocket(ctx context.Context, account, socketID string) (bool, error)
	// SetSpamFilterRules replaces the rules; it reports false without a session
	SetSpamFilterRules(ctx context.Context, account string, rules datatypes.JSON) (bool, error)
}

// MessageStore is the append-only envelope log plus the pending set.
// GetMessages returns the newest limit envelopes of a conversation, oldest first.
type MessageStore interface {
	AppendMessage(ctx context.Context, conversationID string, env models.EncryptionEnvelope) error
	GetMessages(ctx context.Context, conversationID string, limit int) ([]models.EncryptionEnvelope, error)
	AddPending(ctx context.Context, account, contact string) error
	LoadPending(ctx context.Context, account string) ([]string, error)
	ClearPending(ctx context.Context, account string) error
}

// NotificationStore keeps out-of-band notification channels
type NotificationStore interface {
	AddNotificationChannel(ctx context.Context, ch models.NotificationChannel) error
	GetNotificationChannels(ctx context.Context, account string) ([]models.NotificationChannel, error)
}

// Store is everything the service persists
type Store interface {
	SessionStore
	MessageStore
	NotificationStore
}
