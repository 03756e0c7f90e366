package store

import (
	"context"
	"sync"

	"gorm.io/datatypes"

	"github.com/xelth-com/dsrelay/internal/models"
)

// MemoryStore keeps all state in process memory. It is lost on exit.
type MemoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]models.Session
	conversations map[string][]models.EncryptionEnvelope
	pending       map[string][]string
	channels      map[string][]models.NotificationChannel
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[string]models.Session),
		conversations: make(map[string][]models.EncryptionEnvelope),
		pending:       make(map[string][]string),
		channels:      make(map[string][]models.NotificationChannel),
	}
}

var _ Store = (*MemoryStore)(nil)

// GetSession returns a copy so callers cannot mutate stored state
func (m *MemoryStore) GetSession(_ context.Context, account string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[account]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) SetSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.Account] = *session
	return nil
}

func (m *MemoryStore) SetChallenge(_ context.Context, account, challenge string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[account]
	if !ok {
		s = *models.NewSession(account)
	}
	s.Challenge = challenge
	m.sessions[account] = s
	return nil
}

func (m *MemoryStore) ConsumeChallenge(_ context.Context, account, challenge, token string, tokenCreatedAt int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[account]
	if !ok || challenge == "" || s.Challenge != challenge {
		return false, nil
	}
	s.Challenge = ""
	s.Token = token
	s.TokenCreatedAt = tokenCreatedAt
	m.sessions[account] = s
	return true, nil
}

func (m *MemoryStore) AttachSocket(_ context.Context, account, socketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[account]; ok {
		s.SocketID = socketID
		m.sessions[account] = s
	}
	return nil
}

func (m *MemoryStore) ReleaseSocket(_ context.Context, account, socketID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[account]
	if !ok || s.SocketID != socketID {
		return false, nil
	}
	s.SocketID = ""
	m.sessions[account] = s
	return true, nil
}

func (m *MemoryStore) SetSpamFilterRules(_ context.Context, account string, rules datatypes.JSON) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[account]
	if !ok {
		return false, nil
	}
	s.SpamFilterRules = rules
	m.sessions[account] = s
	return true, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, conversationID string, env models.EncryptionEnvelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	env.Info = nil
	m.conversations[conversationID] = append(m.conversations[conversationID], env)
	return nil
}

func (m *MemoryStore) GetMessages(_ context.Context, conversationID string, limit int) ([]models.EncryptionEnvelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	envs := m.conversations[conversationID]
	if limit > 0 && len(envs) > limit {
		envs = envs[len(envs)-limit:]
	}
	out := make([]models.EncryptionEnvelope, len(envs))
	copy(out, envs)
	return out, nil
}

func (m *MemoryStore) AddPending(_ context.Context, account, contact string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.pending[account] {
		if c == contact {
			return nil
		}
	}
	m.pending[account] = append(m.pending[account], contact)
	return nil
}

func (m *MemoryStore) LoadPending(_ context.Context, account string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.pending[account]...), nil
}

func (m *MemoryStore) ClearPending(_ context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pending, account)
	return nil
}

func (m *MemoryStore) AddNotificationChannel(_ context.Context, ch models.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.channels[ch.Account] {
		if existing.Type == ch.Type && existing.Recipient == ch.Recipient {
			return nil
		}
	}
	m.channels[ch.Account] = append(m.channels[ch.Account], ch)
	return nil
}

func (m *MemoryStore) GetNotificationChannels(_ context.Context, account string) ([]models.NotificationChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]models.NotificationChannel(nil), m.channels[account]...), nil
}
