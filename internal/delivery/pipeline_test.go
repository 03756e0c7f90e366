package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/relayerr"
	"github.com/xelth-com/dsrelay/internal/resolver"
	"github.com/xelth-com/dsrelay/internal/store"
)

const (
	alice = "alice.eth"
	bob   = "bob.eth"
)

// countingKeys records how often the pipeline opened a box
type countingKeys struct {
	*crypto.Keyring
	mu      sync.Mutex
	decrypt int
}

func (k *countingKeys) Decrypt(payload string) ([]byte, error) {
	k.mu.Lock()
	k.decrypt++
	k.mu.Unlock()
	return k.Keyring.Decrypt(payload)
}

func (k *countingKeys) calls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.decrypt
}

// tokenTable accepts exactly the listed account/token pairs
type tokenTable map[string]string

func (t tokenTable) CheckToken(_ context.Context, account, token string) bool {
	want, ok := t[account]
	return ok && token != "" && want == token
}

type recordingFilter struct {
	mu     sync.Mutex
	calls  int
	accept bool
	err    error
}

func (f *recordingFilter) Evaluate(_ context.Context, _ *models.SpamFilterRules, _ models.DeliveryInformation) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.accept, f.err
}

type pushed struct {
	socketID string
	env      models.EncryptionEnvelope
}

type recordingPusher struct {
	mu   sync.Mutex
	sent []pushed
	err  error
}

func (p *recordingPusher) Send(socketID string, env models.EncryptionEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, pushed{socketID, env})
	return p.err
}

type recordingNotifier struct {
	done chan models.DeliveryInformation
}

func (n *recordingNotifier) Dispatch(_ context.Context, info models.DeliveryInformation) error {
	n.done <- info
	return nil
}

type fixture struct {
	keys     *countingKeys
	store    *store.MemoryStore
	filter   *recordingFilter
	push     *recordingPusher
	notify   *recordingNotifier
	bobKey   *[32]byte
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kr, err := crypto.GenerateKeyring()
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	bobPub, bobPriv, err := crypto.GenerateEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}

	st := store.NewMemoryStore()
	session := models.NewSession(bob)
	if err := session.SetProfile(models.SignedUserProfile{
		Profile: models.UserProfile{
			PublicEncryptionKey: crypto.EncodeKey(bobPub[:]),
			DeliveryServices:    []string{"ds.eth"},
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.SetSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		keys:   &countingKeys{Keyring: kr},
		store:  st,
		filter: &recordingFilter{accept: true},
		push:   &recordingPusher{},
		notify: &recordingNotifier{done: make(chan models.DeliveryInformation, 1)},
		bobKey: bobPriv,
	}
	f.pipeline = NewPipeline(Options{
		Keys:      f.keys,
		SizeLimit: DefaultSizeLimit,
		Sessions:  st,
		Messages:  st,
		Tokens:    tokenTable{alice: "alice-token"},
		Spam:      f.filter,
		Names:     resolver.NewDirectory(),
		Push:      f.push,
		Notify:    f.notify,
	})
	return f
}

func (f *fixture) envelope(t *testing.T, from, to, message string) models.EncryptionEnvelope {
	t.Helper()
	raw, _ := json.Marshal(models.DeliveryInformation{To: to, From: from})
	sealed, err := crypto.Encrypt(f.keys.PublicEncryptionKey(), raw)
	if err != nil {
		t.Fatal(err)
	}
	return models.EncryptionEnvelope{Message: message, DeliveryInformation: sealed}
}

func (f *fixture) setOnline(t *testing.T, socketID string) {
	t.Helper()
	s, _ := f.store.GetSession(context.Background(), bob)
	s.SocketID = socketID
	if err := f.store.SetSession(context.Background(), s); err != nil {
		t.Fatal(err)
	}
}

func TestConversationID(t *testing.T) {
	if ConversationID(alice, bob) != ConversationID(bob, alice) {
		t.Error("conversation id must not depend on argument order")
	}
	if ConversationID(alice, bob) != "alice.eth,bob.eth" {
		t.Errorf("unexpected id %q", ConversationID(alice, bob))
	}
	if ConversationID(alice, bob) == ConversationID(alice, "carol.eth") {
		t.Error("distinct pairs must have distinct ids")
	}
}

func TestIncomingMessageStoresPostmarked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := time.Now().UnixMilli()

	env := f.envelope(t, "Alice.eth", bob, "ciphertext-1")
	if err := f.pipeline.IncomingMessage(ctx, env, "alice-token"); err != nil {
		t.Fatalf("IncomingMessage failed: %v", err)
	}

	msgs, _ := f.store.GetMessages(ctx, ConversationID(alice, bob), 10)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 stored envelope, got %d", len(msgs))
	}
	if msgs[0].Postmark == "" {
		t.Fatal("stored envelope has no postmark")
	}

	p, err := OpenPostmark(f.bobKey, msgs[0])
	if err != nil {
		t.Fatalf("OpenPostmark failed: %v", err)
	}
	if !VerifyPostmark(f.keys.PublicSigningKey(), p, "ciphertext-1") {
		t.Error("postmark does not verify against the service key")
	}
	if VerifyPostmark(f.keys.PublicSigningKey(), p, "ciphertext-2") {
		t.Error("postmark verified for a different message")
	}
	if p.IncomingTimestamp < before {
		t.Errorf("incoming timestamp %d is before submission %d", p.IncomingTimestamp, before)
	}

	select {
	case info := <-f.notify.done:
		if info.To != bob || info.From != alice {
			t.Errorf("unexpected notification routing %+v", info)
		}
	case <-time.After(2 * time.Second):
		t.Error("offline recipient was not notified")
	}
	if len(f.push.sent) != 0 {
		t.Error("push attempted for an offline recipient")
	}
}

func TestIncomingMessagePushesWhenOnline(t *testing.T) {
	f := newFixture(t)
	f.setOnline(t, "sock-1")
	f.push.err = errors.New("socket closed")

	env := f.envelope(t, alice, bob, "hello")
	if err := f.pipeline.IncomingMessage(context.Background(), env, "alice-token"); err != nil {
		t.Fatalf("push failure must not fail delivery: %v", err)
	}

	if len(f.push.sent) != 1 {
		t.Fatalf("Expected 1 push, got %d", len(f.push.sent))
	}
	got := f.push.sent[0]
	if got.socketID != "sock-1" {
		t.Errorf("pushed to %q", got.socketID)
	}
	if got.env.Postmark == "" || got.env.Message != "hello" {
		t.Errorf("pushed envelope is not the postmarked one: %+v", got.env)
	}

	msgs, _ := f.store.GetMessages(context.Background(), ConversationID(alice, bob), 10)
	if len(msgs) != 1 {
		t.Errorf("envelope must be stored even when push fails")
	}
	select {
	case <-f.notify.done:
		t.Error("online recipient must not be notified out of band")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIncomingMessageSizeLimit(t *testing.T) {
	f := newFixture(t)
	env := f.envelope(t, alice, bob, "sized")
	raw, _ := json.Marshal(env)

	f.pipeline.opts.SizeLimit = len(raw)
	if err := f.pipeline.IncomingMessage(context.Background(), env, "alice-token"); err != nil {
		t.Fatalf("envelope of exactly the limit rejected: %v", err)
	}

	calls := f.keys.calls()
	f.pipeline.opts.SizeLimit = len(raw) - 1
	err := f.pipeline.IncomingMessage(context.Background(), env, "alice-token")
	if !errors.Is(err, relayerr.ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
	if f.keys.calls() != calls {
		t.Error("oversized envelope was decrypted")
	}
}

func TestIncomingMessageRejections(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		token   string
		want    error
		spamRun bool
	}{
		{"bad token", alice, bob, "forged", relayerr.ErrUnauthorized, false},
		{"no token", alice, bob, "", relayerr.ErrUnauthorized, false},
		{"unknown sender", "mallory.eth", bob, "alice-token", relayerr.ErrUnauthorized, false},
		{"unknown recipient", alice, "carol.eth", "alice-token", relayerr.ErrUnknownSession, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.pipeline.IncomingMessage(context.Background(), f.envelope(t, tt.from, tt.to, "m"), tt.token)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if tt.want == relayerr.ErrUnauthorized && !errors.Is(err, relayerr.ErrTokenInvalid) {
				t.Errorf("sender rejection should carry ErrTokenInvalid: %v", err)
			}
			if (f.filter.calls > 0) != tt.spamRun {
				t.Errorf("spam filter calls = %d", f.filter.calls)
			}
			msgs, _ := f.store.GetMessages(context.Background(), ConversationID(tt.from, tt.to), 10)
			if len(msgs) != 0 {
				t.Error("rejected envelope was stored")
			}
		})
	}
}

func TestIncomingMessageSpam(t *testing.T) {
	for _, tt := range []struct {
		name   string
		accept bool
		err    error
	}{
		{"rejected", false, nil},
		{"evaluation error", true, errors.New("rpc down")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.filter.accept, f.filter.err = tt.accept, tt.err
			f.setOnline(t, "sock-1")

			err := f.pipeline.IncomingMessage(context.Background(), f.envelope(t, alice, bob, "m"), "alice-token")
			if !errors.Is(err, relayerr.ErrSpamRejected) {
				t.Fatalf("Expected ErrSpamRejected, got %v", err)
			}
			if len(f.push.sent) != 0 {
				t.Error("spam was pushed")
			}
		})
	}
}

func TestIncomingMessageDecryptionFailure(t *testing.T) {
	f := newFixture(t)

	other, err := crypto.GenerateKeyring()
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(models.DeliveryInformation{To: bob, From: alice})
	sealed, _ := crypto.Encrypt(other.PublicEncryptionKey(), raw)

	for _, payload := range []string{sealed, "not-a-box", ""} {
		env := models.EncryptionEnvelope{Message: "m", DeliveryInformation: payload}
		err := f.pipeline.IncomingMessage(context.Background(), env, "alice-token")
		if !errors.Is(err, relayerr.ErrDecryption) {
			t.Errorf("payload %.20q: expected ErrDecryption, got %v", payload, err)
		}
	}
	if f.filter.calls != 0 {
		t.Error("spam filter ran on an undecryptable envelope")
	}
}

func TestIncomingMessageMalformedIdentity(t *testing.T) {
	for _, tt := range []struct{ from, to string }{
		{alice, "carol,dave.eth"},
		{"mallory\r\n.eth", bob},
	} {
		f := newFixture(t)
		err := f.pipeline.IncomingMessage(context.Background(), f.envelope(t, tt.from, tt.to, "m"), "alice-token")
		if !errors.Is(err, relayerr.ErrInvalidRequest) || errors.Is(err, relayerr.ErrDecryption) {
			t.Errorf("%q -> %q: expected ErrInvalidRequest, got %v", tt.from, tt.to, err)
		}
		if f.filter.calls != 0 {
			t.Error("spam filter ran on a malformed envelope")
		}
	}
}
