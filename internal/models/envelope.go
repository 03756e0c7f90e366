package models

import "time"

// EncryptionEnvelope is the wire unit exchanged between clients via the service
type EncryptionEnvelope struct {
	Message             string `json:"message"`
	DeliveryInformation string `json:"deliveryInformation"`
	Postmark            string `json:"postmark,omitempty"`

	// Info is the decrypted routing data, kept server-side for indexing only.
	Info *DeliveryInformation `json:"-"`
}

// DeliveryInformation is the decrypted routing metadata of an envelope
type DeliveryInformation struct {
	To                  string `json:"to"`
	From                string `json:"from"`
	DeliveryInstruction string `json:"deliveryInstruction,omitempty"`
}

// Postmark is the service's signed proof of receipt, before encryption
type Postmark struct {
	MessageHash       string `json:"messageHash"`
	IncomingTimestamp int64  `json:"incomingTimestamp"` // ms
	Signature         string `json:"signature"`
}

// StoredEnvelope is the relational row behind an accepted envelope
type StoredEnvelope struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	ConversationID      string `gorm:"index:idx_conversation_created;not null" json:"conversationId"`
	Message             string `gorm:"type:text;not null" json:"message"`
	DeliveryInformation string `gorm:"type:text;not null" json:"deliveryInformation"`
	Postmark            string `gorm:"type:text" json:"postmark"`

	// Indexing only, never returned to clients
	ToAccount   string `gorm:"index" json:"-"`
	FromAccount string `gorm:"index" json:"-"`

	CreatedAt time.Time `gorm:"index:idx_conversation_created" json:"createdAt"`
}

// TableName specifies the table name
func (StoredEnvelope) TableName() string {
	return "envelopes"
}

// Envelope converts the row back to its wire form
func (s StoredEnvelope) Envelope() EncryptionEnvelope {
	return EncryptionEnvelope{
		Message:             s.Message,
		DeliveryInformation: s.DeliveryInformation,
		Postmark:            s.Postmark,
	}
}
