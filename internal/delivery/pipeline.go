// Package delivery implements envelope ingestion: the checks, postmarking,
// storage and push that turn a submitted envelope into a delivered one.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/relayerr"
	"github.com/xelth-com/dsrelay/internal/spam"
	"github.com/xelth-com/dsrelay/internal/store"
)

// DefaultSizeLimit bounds a serialized envelope when none is configured
const DefaultSizeLimit = 100000

// Decrypter opens sealed boxes addressed to the service
type Decrypter interface {
	Decrypt(payload string) ([]byte, error)
}

// Signer signs with the service signing key
type Signer interface {
	Sign(message []byte) string
}

// ServiceKeys is the service keyring as the pipeline uses it
type ServiceKeys interface {
	Decrypter
	Signer
}

// TokenChecker validates a sender's bearer token
type TokenChecker interface {
	CheckToken(ctx context.Context, account, token string) bool
}

// Normalizer canonicalizes identities
type Normalizer interface {
	Normalize(identity string) (string, error)
}

// Pusher delivers an envelope over a live push channel
type Pusher interface {
	Send(socketID string, env models.EncryptionEnvelope) error
}

// Notifier fires out-of-band notifications for offline recipients
type Notifier interface {
	Dispatch(ctx context.Context, info models.DeliveryInformation) error
}

// Appender is the storage step of the pipeline
type Appender interface {
	AppendMessage(ctx context.Context, conversationID string, env models.EncryptionEnvelope) error
}

// Options wires a Pipeline
type Options struct {
	Keys      ServiceKeys
	SizeLimit int
	Sessions  store.SessionStore
	Messages  Appender
	Tokens    TokenChecker
	Spam      spam.Filter
	Names     Normalizer
	Push      Pusher
	Notify    Notifier // optional
}

// Pipeline ingests envelopes. It holds no per-message state, so one Pipeline
// serves any number of concurrent submissions.
type Pipeline struct {
	opts Options
	now  func() time.Time
}

// NewPipeline builds a Pipeline
func NewPipeline(opts Options) *Pipeline {
	if opts.SizeLimit <= 0 {
		opts.SizeLimit = DefaultSizeLimit
	}
	return &Pipeline{opts: opts, now: time.Now}
}

// IncomingMessage runs an envelope through the ingestion steps in order and
// stops at the first failure. On success the envelope is stored with its
// postmark and, if the recipient is online, pushed.
func (p *Pipeline) IncomingMessage(ctx context.Context, env models.EncryptionEnvelope, token string) error {
	// 1. Size, before any decryption work
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrDecryption, err)
	}
	if len(raw) > p.opts.SizeLimit {
		return fmt.Errorf("%w: %d > %d bytes", relayerr.ErrPayloadTooLarge, len(raw), p.opts.SizeLimit)
	}

	// 2. Routing data
	info, err := p.openDeliveryInformation(env.DeliveryInformation)
	if err != nil {
		return err
	}

	// 3. Canonical identities
	to, err := p.opts.Names.Normalize(info.To)
	if err != nil {
		return fmt.Errorf("%w: recipient: %v", relayerr.ErrInvalidRequest, err)
	}
	from, err := p.opts.Names.Normalize(info.From)
	if err != nil {
		return fmt.Errorf("%w: sender: %v", relayerr.ErrInvalidRequest, err)
	}
	info.To, info.From = to, from
	conversationID := ConversationID(to, from)

	// 4. Sender
	if !p.opts.Tokens.CheckToken(ctx, from, token) {
		return fmt.Errorf("%w: %w: sender %s", relayerr.ErrUnauthorized, relayerr.ErrTokenInvalid, from)
	}

	// 5. Recipient
	recipient, err := p.opts.Sessions.GetSession(ctx, to)
	if err != nil {
		return err
	}
	if recipient == nil {
		return fmt.Errorf("%w: %s", relayerr.ErrUnknownSession, to)
	}
	profile, ok, err := recipient.Profile()
	if err != nil || !ok {
		return fmt.Errorf("%w: %s has no profile", relayerr.ErrUnknownSession, to)
	}

	// 6. Spam
	rules, err := recipient.Rules()
	if err != nil {
		log.Printf("delivery: unreadable spam rules for %s: %v", to, err)
		return fmt.Errorf("%w: rules", relayerr.ErrSpamRejected)
	}
	accepted, err := p.opts.Spam.Evaluate(ctx, rules, info)
	if err != nil {
		log.Printf("delivery: spam evaluation for %s failed: %v", conversationID, err)
	}
	if err != nil || !accepted {
		return relayerr.ErrSpamRejected
	}

	// 7. Postmark
	env.Postmark, err = buildPostmark(p.opts.Keys, env.Message, p.now(), profile.Profile.PublicEncryptionKey)
	if err != nil {
		return fmt.Errorf("postmark for %s: %w", to, err)
	}

	// 8. Persist before anything is pushed
	env.Info = &info
	if err := p.opts.Messages.AppendMessage(ctx, conversationID, env); err != nil {
		return fmt.Errorf("store envelope: %w", err)
	}

	// 9. Push, best effort
	if recipient.Online() {
		if p.opts.Push != nil {
			if err := p.opts.Push.Send(recipient.SocketID, env); err != nil {
				log.Printf("delivery: push to %s failed: %v", to, err)
			}
		}
	} else if p.opts.Notify != nil {
		go func(ctx context.Context) {
			if err := p.opts.Notify.Dispatch(ctx, info); err != nil {
				log.Printf("delivery: notification for %s failed: %v", to, err)
			}
		}(context.WithoutCancel(ctx))
	}

	return nil
}

func (p *Pipeline) openDeliveryInformation(payload string) (models.DeliveryInformation, error) {
	var info models.DeliveryInformation

	plain, err := p.opts.Keys.Decrypt(payload)
	if err != nil {
		return info, fmt.Errorf("%w: %v", relayerr.ErrDecryption, err)
	}
	if err := json.Unmarshal(plain, &info); err != nil {
		return info, fmt.Errorf("%w: %v", relayerr.ErrDecryption, err)
	}
	if info.To == "" || info.From == "" {
		return info, fmt.Errorf("%w: incomplete delivery information", relayerr.ErrDecryption)
	}
	return info, nil
}
