package models

import "time"

// NotificationChannelType names an out-of-band notification medium
type NotificationChannelType string

const (
	NotificationEmail NotificationChannelType = "EMAIL"
)

// NotificationChannel is an out-of-band target registered by an account
type NotificationChannel struct {
	ID        uint                    `gorm:"primaryKey" json:"id"`
	Account   string                  `gorm:"uniqueIndex:idx_channel;not null" json:"account"`
	Type      NotificationChannelType `gorm:"uniqueIndex:idx_channel;not null" json:"type"`
	Recipient string                  `gorm:"uniqueIndex:idx_channel;not null" json:"recipient"`
	CreatedAt time.Time               `json:"createdAt"`
}

// TableName specifies the table name
func (NotificationChannel) TableName() string {
	return "notification_channels"
}
