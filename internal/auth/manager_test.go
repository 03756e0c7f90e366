package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/relayerr"
	"github.com/xelth-com/dsrelay/internal/store"
)

const testSecret = "test-secret-key-12345"

// setupAccount stores a session with a published signing key for account
func setupAccount(t *testing.T, st *store.MemoryStore, account string) ed25519.PrivateKey {
	t.Helper()
	pub, priv, err := crypto.GenerateSigningKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	session := models.NewSession(account)
	err = session.SetProfile(models.SignedUserProfile{
		Profile: models.UserProfile{
			PublicSigningKey: crypto.EncodeKey(pub),
			DeliveryServices: []string{"ds.eth"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SetSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}
	return priv
}

func login(t *testing.T, m *Manager, account string, key ed25519.PrivateKey) string {
	t.Helper()
	ctx := context.Background()

	challenge, err := m.CreateChallenge(ctx, account)
	if err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}
	token, err := m.CreateNewSessionToken(ctx, account, crypto.Sign(key, []byte(challenge)), challenge)
	if err != nil {
		t.Fatalf("CreateNewSessionToken failed: %v", err)
	}
	return token
}

// rawToken signs arbitrary claims with the manager secret
func rawToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// storeToken makes token the session's current token
func storeToken(t *testing.T, st *store.MemoryStore, account, token string, createdAtMs int64) {
	t.Helper()
	s, _ := st.GetSession(context.Background(), account)
	s.Token = token
	s.TokenCreatedAt = createdAtMs
	if err := st.SetSession(context.Background(), s); err != nil {
		t.Fatal(err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(st, testSecret, time.Hour)
	key := setupAccount(t, st, "alice.eth")

	token := login(t, m, "alice.eth", key)
	if !m.CheckToken(context.Background(), "alice.eth", token) {
		t.Error("Freshly minted token should be valid")
	}
	if !m.CheckToken(context.Background(), "ALICE.eth", token) {
		t.Error("Token check should normalize the account")
	}
	if m.CheckToken(context.Background(), "bob.eth", token) {
		t.Error("Token should not be valid for another account")
	}
}

func TestChallengeRotation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewManager(st, testSecret, time.Hour)
	key := setupAccount(t, st, "alice.eth")

	first, err := m.CreateChallenge(ctx, "alice.eth")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.CreateChallenge(ctx, "alice.eth")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("Every challenge should be fresh")
	}

	_, err = m.CreateNewSessionToken(ctx, "alice.eth", crypto.Sign(key, []byte(first)), first)
	if !errors.Is(err, relayerr.ErrAuth) {
		t.Errorf("Stale challenge should fail with ErrAuth, got %v", err)
	}

	if _, err := m.CreateNewSessionToken(ctx, "alice.eth", crypto.Sign(key, []byte(second)), second); err != nil {
		t.Fatalf("Current challenge should succeed: %v", err)
	}

	// A used challenge cannot be replayed
	_, err = m.CreateNewSessionToken(ctx, "alice.eth", crypto.Sign(key, []byte(second)), second)
	if !errors.Is(err, relayerr.ErrAuth) {
		t.Errorf("Replayed challenge should fail with ErrAuth, got %v", err)
	}
}

func TestCreateChallengeCreatesSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewManager(st, testSecret, time.Hour)

	challenge, err := m.CreateChallenge(ctx, "new.eth")
	if err != nil {
		t.Fatal(err)
	}
	s, _ := st.GetSession(ctx, "new.eth")
	if s == nil || s.Challenge != challenge {
		t.Fatalf("Expected session with challenge, got %+v", s)
	}

	// No profile, so no signing key to verify against
	_, err = m.CreateNewSessionToken(ctx, "new.eth", "sig", challenge)
	if !errors.Is(err, relayerr.ErrAuth) {
		t.Errorf("Expected ErrAuth without profile, got %v", err)
	}
}

func TestCreateNewSessionTokenRejects(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewManager(st, testSecret, time.Hour)
	key := setupAccount(t, st, "alice.eth")
	_, otherKey, _ := crypto.GenerateSigningKey()

	if _, err := m.CreateNewSessionToken(ctx, "ghost.eth", "x", "y"); !errors.Is(err, relayerr.ErrAuth) {
		t.Errorf("Missing session should fail with ErrAuth, got %v", err)
	}

	challenge, _ := m.CreateChallenge(ctx, "alice.eth")
	if _, err := m.CreateNewSessionToken(ctx, "alice.eth", crypto.Sign(otherKey, []byte(challenge)), challenge); !errors.Is(err, relayerr.ErrAuth) {
		t.Errorf("Wrong key should fail with ErrAuth, got %v", err)
	}
	if _, err := m.CreateNewSessionToken(ctx, "alice.eth", crypto.Sign(key, []byte("other")), challenge); !errors.Is(err, relayerr.ErrAuth) {
		t.Errorf("Signature over other data should fail with ErrAuth, got %v", err)
	}
	if _, err := m.CreateNewSessionToken(ctx, "alice.eth", crypto.Sign(key, []byte("")), ""); !errors.Is(err, relayerr.ErrAuth) {
		t.Errorf("Empty challenge should fail with ErrAuth, got %v", err)
	}
}

func TestTokenClaimSetExactness(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewManager(st, testSecret, time.Hour)
	setupAccount(t, st, "alice.eth")

	now := time.Now()
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"account": "alice.eth",
			"iat":     now.Unix(),
			"nbf":     now.Unix(),
			"exp":     now.Add(time.Hour).Unix(),
		}
	}

	valid := rawToken(t, base())
	storeToken(t, st, "alice.eth", valid, now.Unix()*1000)
	if !m.CheckToken(ctx, "alice.eth", valid) {
		t.Fatal("Exact claim set should be accepted")
	}

	extra := base()
	extra["challenge"] = "abc"
	tok := rawToken(t, extra)
	storeToken(t, st, "alice.eth", tok, now.Unix()*1000)
	if m.CheckToken(ctx, "alice.eth", tok) {
		t.Error("Token with extra claim should be rejected")
	}

	for _, missing := range []string{"account", "iat", "nbf", "exp"} {
		claims := base()
		delete(claims, missing)
		tok := rawToken(t, claims)
		storeToken(t, st, "alice.eth", tok, now.Unix()*1000)
		if m.CheckToken(ctx, "alice.eth", tok) {
			t.Errorf("Token without %s should be rejected", missing)
		}
	}
}

func TestTokenTimeClaims(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewManager(st, testSecret, time.Hour)
	setupAccount(t, st, "alice.eth")
	now := time.Now()

	cases := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"expired", jwt.MapClaims{
			"account": "alice.eth",
			"iat":     now.Add(-2 * time.Hour).Unix(),
			"nbf":     now.Add(-2 * time.Hour).Unix(),
			"exp":     now.Add(-time.Hour).Unix(),
		}},
		{"future nbf", jwt.MapClaims{
			"account": "alice.eth",
			"iat":     now.Unix(),
			"nbf":     now.Add(time.Hour).Unix(),
			"exp":     now.Add(2 * time.Hour).Unix(),
		}},
		{"future iat", jwt.MapClaims{
			"account": "alice.eth",
			"iat":     now.Add(time.Hour).Unix(),
			"nbf":     now.Unix(),
			"exp":     now.Add(2 * time.Hour).Unix(),
		}},
	}
	for _, c := range cases {
		tok := rawToken(t, c.claims)
		storeToken(t, st, "alice.eth", tok, 0)
		if m.CheckToken(ctx, "alice.eth", tok) {
			t.Errorf("%s token should be rejected", c.name)
		}
	}

	wrongKey, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account": "alice.eth", "iat": now.Unix(), "nbf": now.Unix(), "exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("wrong-key"))
	storeToken(t, st, "alice.eth", wrongKey, 0)
	if m.CheckToken(ctx, "alice.eth", wrongKey) {
		t.Error("Token signed with another secret should be rejected")
	}
}

func TestTokenFreshnessFloor(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewManager(st, testSecret, time.Hour)
	setupAccount(t, st, "alice.eth")

	issued := time.Now().Add(-time.Minute)
	tok := rawToken(t, jwt.MapClaims{
		"account": "alice.eth",
		"iat":     issued.Unix(),
		"nbf":     issued.Unix(),
		"exp":     issued.Add(time.Hour).Unix(),
	})

	storeToken(t, st, "alice.eth", tok, issued.Unix()*1000)
	if !m.CheckToken(ctx, "alice.eth", tok) {
		t.Fatal("Token issued at createdAt should be accepted")
	}

	storeToken(t, st, "alice.eth", tok, issued.Add(time.Second).Unix()*1000)
	if m.CheckToken(ctx, "alice.eth", tok) {
		t.Error("Token issued before createdAt should be rejected")
	}
}

func TestTokenRotation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewManager(st, testSecret, time.Hour)
	key := setupAccount(t, st, "alice.eth")

	clock := time.Now()
	m.Now = func() time.Time { return clock }
	old := login(t, m, "alice.eth", key)

	clock = clock.Add(2 * time.Second)
	current := login(t, m, "alice.eth", key)

	if m.CheckToken(ctx, "alice.eth", old) {
		t.Error("Token superseded by re-authentication should be rejected")
	}
	if !m.CheckToken(ctx, "alice.eth", current) {
		t.Error("Current token should be accepted")
	}
}

func TestCheckTokenWithoutSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewManager(st, testSecret, time.Hour)

	if m.CheckToken(ctx, "ghost.eth", "anything") {
		t.Error("Missing session should be rejected")
	}

	_, _ = m.CreateChallenge(ctx, "ghost.eth")
	if m.CheckToken(ctx, "ghost.eth", "") {
		t.Error("Session without token should be rejected")
	}
}

// racingStore lets a second exchange of the same challenge land first
type racingStore struct {
	*store.MemoryStore
	before func()
}

func (r *racingStore) ConsumeChallenge(ctx context.Context, account, challenge, token string, createdAt int64) (bool, error) {
	if f := r.before; f != nil {
		r.before = nil
		f()
	}
	return r.MemoryStore.ConsumeChallenge(ctx, account, challenge, token, createdAt)
}

func TestConcurrentChallengeExchange(t *testing.T) {
	ctx := context.Background()
	st := &racingStore{MemoryStore: store.NewMemoryStore()}
	m := NewManager(st, testSecret, time.Hour)
	key := setupAccount(t, st.MemoryStore, "alice.eth")

	challenge, err := m.CreateChallenge(ctx, "alice.eth")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AttachSocket(ctx, "alice.eth", "sock"); err != nil {
		t.Fatal(err)
	}
	sig := crypto.Sign(key, []byte(challenge))

	var winner string
	st.before = func() {
		winner, err = m.CreateNewSessionToken(ctx, "alice.eth", sig, challenge)
		if err != nil {
			t.Errorf("first exchange failed: %v", err)
		}
	}

	_, err = m.CreateNewSessionToken(ctx, "alice.eth", sig, challenge)
	if !errors.Is(err, relayerr.ErrAuth) {
		t.Fatalf("Second exchange of one challenge should fail with ErrAuth, got %v", err)
	}
	if !m.CheckToken(ctx, "alice.eth", winner) {
		t.Error("The winning token should stay current")
	}
	s, _ := st.GetSession(ctx, "alice.eth")
	if s.SocketID != "sock" || s.Challenge != "" {
		t.Errorf("login disturbed unrelated fields: %+v", s)
	}
}
