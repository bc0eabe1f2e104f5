// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message log.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/domain"
)

// CreateMessage appends a message with status Processing.
func CreateMessage(ctx context.Context, db *gorm.DB, chatID, userID uint, content string, at time.Time) (*domain.Message, error) {
	m := &domain.Message{
		ChatID:    chatID,
		UserID:    userID,
		Content:   content,
		Status:    domain.MessageProcessing,
		CreatedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// GetMessage fetches a message by ID, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkMessageSent moves a message from Processing to Sent. It returns
// ErrNotFound when no Processing message with that ID exists.
func MarkMessageSent(ctx context.Context, db *gorm.DB, id uint, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.MessageProcessing).
		Updates(map[string]any{
			"status":     domain.MessageSent,
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSentMessages returns the Sent messages of a chat in delivery order
// (queue time, then queue entry id). It reads the log, not the cache.
func ListSentMessages(ctx context.Context, db *gorm.DB, chatID uint) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Table("messages AS m").
		Select("m.*").
		Joins("JOIN queue_entries q ON q.message_id = m.id").
		Where("m.chat_id = ? AND m.status = ?", chatID, domain.MessageSent).
		Order("q.queued_at ASC, q.id ASC").
		Scan(&out).Error
	return out, err
}
