package domain

import "time"

// Idempotency records the message produced by a request carrying an
// Idempotency-Key, keyed by (user, chat, key). A replay within the TTL
// resolves to the stored message instead of enqueueing again.
type Idempotency struct {
	ID           string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID       uint      `gorm:"not null;uniqueIndex:ux_user_chat_key,priority:1"`
	ChatID       uint      `gorm:"not null;uniqueIndex:ux_user_chat_key,priority:2"`
	Key          string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_chat_key,priority:3"`
	MessageID    uint      `gorm:"not null"`
	QueueEntryID uint      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt    time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
