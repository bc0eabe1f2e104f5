// Package domain defines the persistence models for accounts, chats, the
// message log, the delivery queue and the per-chat history cache. These types
// are mapped with GORM and shared by the repository, service and worker layers.
package domain

import (
	"encoding/json"
	"time"
)

// Default role assigned to newly created accounts.
const RoleChatter = "chatter"

// User is an account identified by a unique username.
//
// Fields:
//   - ID: autoincrement primary key.
//   - Username: NFC-normalized, unique.
//   - PasswordHash: encoded credential (never serialized).
//   - Role: free-form role, "chatter" unless set otherwise.
type User struct {
	ID           uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username"   gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	PasswordHash string    `json:"-"          gorm:"type:text;not null"`
	Role         string    `json:"role"       gorm:"type:varchar(32);not null;default:'chatter'"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Chat is a named room. Every chat owns exactly one HistoryCache row and a
// set of memberships.
type Chat struct {
	ID        uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name"       gorm:"type:varchar(64);not null;uniqueIndex:ux_chats_name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Membership joins a user to a chat.
type Membership struct {
	ID       uint      `json:"id"        gorm:"primaryKey;autoIncrement"`
	ChatID   uint      `json:"chat_id"   gorm:"not null;uniqueIndex:ux_chat_users,priority:1"`
	UserID   uint      `json:"user_id"   gorm:"not null;uniqueIndex:ux_chat_users,priority:2;index"`
	IsActive bool      `json:"is_active" gorm:"not null;default:true"`
	JoinedAt time.Time `json:"joined_at" gorm:"not null"`

	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Membership.
func (Membership) TableName() string { return "chat_users" }

// MessageStatus is the lifecycle status of a logged message.
type MessageStatus string

const (
	// MessageProcessing is set at ingestion and kept until delivery commits.
	MessageProcessing MessageStatus = "Processing"
	// MessageSent marks a message that is reflected in its chat's history.
	MessageSent MessageStatus = "Sent"
)

// Message is an entry of the durable log. Everything except Status is
// immutable after insert.
type Message struct {
	ID        uint          `json:"id"         gorm:"primaryKey;autoIncrement"`
	ChatID    uint          `json:"chat_id"    gorm:"not null;index:idx_chat_msgs,priority:1"`
	UserID    uint          `json:"user_id"    gorm:"not null;index"`
	Content   string        `json:"content"    gorm:"type:text;not null"`
	Status    MessageStatus `json:"status"     gorm:"type:varchar(16);not null;default:'Processing';check:status IN ('Processing','Sent')"`
	CreatedAt time.Time     `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// QueueStatus is the status of a delivery task.
type QueueStatus string

const (
	QueueQueued   QueueStatus = "Queued"
	QueueFinished QueueStatus = "Finished"
)

// DirectionInbound tags tasks created by ingestion.
const DirectionInbound = "inbound"

// QueueEntry is a pending delivery task, one per Message. ChatID is copied
// from the message so the poller can order and partition without a join.
//
// Attempts, NextAttemptAt and LastError track failed deliveries. An entry
// with NextAttemptAt in the future is deferred and holds back the rest of
// its chat until then.
type QueueEntry struct {
	ID            uint        `json:"id"                        gorm:"primaryKey;autoIncrement"`
	MessageID     uint        `json:"message_id"                gorm:"not null;uniqueIndex:ux_queue_message"`
	ChatID        uint        `json:"chat_id"                   gorm:"not null;index:idx_queue_chat_status,priority:1"`
	Direction     string      `json:"direction"                 gorm:"type:varchar(16);not null;default:'inbound'"`
	Status        QueueStatus `json:"status"                    gorm:"type:varchar(16);not null;default:'Queued';index:idx_queue_status_time,priority:1;index:idx_queue_chat_status,priority:2;check:status IN ('Queued','Finished')"`
	QueuedAt      time.Time   `json:"queued_at"                 gorm:"not null;index:idx_queue_status_time,priority:2"`
	ProcessedAt   *time.Time  `json:"processed_at,omitempty"`
	Attempts      int         `json:"attempts"                  gorm:"not null;default:0"`
	NextAttemptAt *time.Time  `json:"next_attempt_at,omitempty"`
	LastError     string      `json:"last_error,omitempty"      gorm:"type:text"`
}

// TableName returns the database table name for QueueEntry.
func (QueueEntry) TableName() string { return "queue_entries" }

// HistoryItem is one delivered message as exposed by the history read path.
type HistoryItem struct {
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryCache is the materialized, ordered history of a chat, stored as a
// JSON array. Version increases by one on each append and guards the
// read-modify-write against concurrent writers.
type HistoryCache struct {
	ID        uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	ChatID    uint      `json:"chat_id"    gorm:"not null;uniqueIndex:ux_history_chat"`
	Messages  string    `json:"-"          gorm:"type:text;not null;default:'[]'"`
	Version   int64     `json:"version"    gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`

	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for HistoryCache.
func (HistoryCache) TableName() string { return "history_caches" }

// Items decodes the cached sequence. An empty column decodes to an empty,
// non-nil slice.
func (h *HistoryCache) Items() ([]HistoryItem, error) {
	out := []HistoryItem{}
	if h.Messages == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(h.Messages), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Append adds item to the end of the sequence and returns it as stored.
// Timestamps are kept strictly increasing: an item not later than the
// current tail is stamped one microsecond after it.
func (h *HistoryCache) Append(item HistoryItem) (HistoryItem, error) {
	items, err := h.Items()
	if err != nil {
		return HistoryItem{}, err
	}
	if n := len(items); n > 0 {
		if last := items[n-1].CreatedAt; !item.CreatedAt.After(last) {
			item.CreatedAt = last.Add(time.Microsecond)
		}
	}
	if err := h.SetItems(append(items, item)); err != nil {
		return HistoryItem{}, err
	}
	return item, nil
}

// SetItems encodes items into the Messages column.
func (h *HistoryCache) SetItems(items []HistoryItem) error {
	if items == nil {
		items = []HistoryItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	h.Messages = string(b)
	return nil
}
