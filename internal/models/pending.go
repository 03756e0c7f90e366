package models

import "time"

// PendingEntry records that Contact tried to reach Account before it had a profile
type PendingEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Account   string    `gorm:"uniqueIndex:idx_pending_pair;not null" json:"account"`
	Contact   string    `gorm:"uniqueIndex:idx_pending_pair;not null" json:"contact"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name
func (PendingEntry) TableName() string {
	return "pending_entries"
}
