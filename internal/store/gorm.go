package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xelth-com/dsrelay/internal/database"
	"github.com/xelth-com/dsrelay/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists everything in postgres through gorm
type GormStore struct {
	db *database.DB
}

// NewGormStore wraps an open database
func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db}
}

var _ Store = (*GormStore)(nil)

// Models lists the tables GormStore needs migrated
func Models() []interface{} {
	return []interface{}{
		&models.Session{},
		&models.StoredEnvelope{},
		&models.PendingEntry{},
		&models.NotificationChannel{},
	}
}

func (s *GormStore) GetSession(ctx context.Context, account string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Where("account = ?", account).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

func (s *GormStore) SetSession(ctx context.Context, session *models.Session) error {
	if err := s.db.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *GormStore) SetChallenge(ctx context.Context, account, challenge string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"challenge"}),
	}).Create(&models.Session{Account: account, Challenge: challenge}).Error
	if err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

func (s *GormStore) ConsumeChallenge(ctx context.Context, account, challenge, token string, tokenCreatedAt int64) (bool, error) {
	if challenge == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("account = ? AND challenge = ?", account, challenge).
		Updates(map[string]interface{}{
			"challenge":        "",
			"token":            token,
			"token_created_at": tokenCreatedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to store token: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) AttachSocket(ctx context.Context, account, socketID string) error {
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("account = ?", account).
		Update("socket_id", socketID).Error
	if err != nil {
		return fmt.Errorf("failed to attach socket: %w", err)
	}
	return nil
}

func (s *GormStore) ReleaseSocket(ctx context.Context, account, socketID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("account = ? AND socket_id = ?", account, socketID).
		Update("socket_id", "")
	if res.Error != nil {
		return false, fmt.Errorf("failed to release socket: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) SetSpamFilterRules(ctx context.Context, account string, rules datatypes.JSON) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("account = ?", account).
		Update("spam_filter_rules", rules)
	if res.Error != nil {
		return false, fmt.Errorf("failed to store spam filter rules: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, conversationID string, env models.EncryptionEnvelope) error {
	row := models.StoredEnvelope{
		ConversationID:      conversationID,
		Message:             env.Message,
		DeliveryInformation: env.DeliveryInformation,
		Postmark:            env.Postmark,
	}
	if env.Info != nil {
		row.ToAccount = env.Info.To
		row.FromAccount = env.Info.From
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append envelope: %w", err)
	}
	return nil
}

func (s *GormStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]models.EncryptionEnvelope, error) {
	// newest first so the limit keeps the tail, then back to oldest first
	var rows []models.StoredEnvelope
	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load envelopes: %w", err)
	}

	envs := make([]models.EncryptionEnvelope, len(rows))
	for i, row := range rows {
		envs[len(rows)-1-i] = row.Envelope()
	}
	return envs, nil
}

func (s *GormStore) AddPending(ctx context.Context, account, contact string) error {
	entry := models.PendingEntry{Account: account, Contact: contact}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to add pending entry: %w", err)
	}
	return nil
}

func (s *GormStore) LoadPending(ctx context.Context, account string) ([]string, error) {
	var contacts []string
	err := s.db.WithContext(ctx).Model(&models.PendingEntry{}).
		Where("account = ?", account).
		Order("id ASC").
		Pluck("contact", &contacts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending entries: %w", err)
	}
	return contacts, nil
}

func (s *GormStore) ClearPending(ctx context.Context, account string) error {
	if err := s.db.WithContext(ctx).Where("account = ?", account).Delete(&models.PendingEntry{}).Error; err != nil {
		return fmt.Errorf("failed to clear pending entries: %w", err)
	}
	return nil
}

func (s *GormStore) AddNotificationChannel(ctx context.Context, ch models.NotificationChannel) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&ch).Error
	if err != nil {
		return fmt.Errorf("failed to add notification channel: %w", err)
	}
	return nil
}

func (s *GormStore) GetNotificationChannels(ctx context.Context, account string) ([]models.NotificationChannel, error) {
	var channels []models.NotificationChannel
	if err := s.db.WithContext(ctx).Where("account = ?", account).Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("failed to load notification channels: %w", err)
	}
	return channels, nil
}
