// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for chats and
// their memberships.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - A duplicate chat name or membership yields ErrDuplicate.
//   - On other DB errors the raw gorm error is propagated.
//
// Usage:
//
//	err := db.Transaction(func(tx *gorm.DB) error {
//	    chat, err := repo.CreateChat(ctx, tx, "general")
//	    if err != nil {
//	        return err
//	    }
//	    return repo.InitHistory(ctx, tx, chat.ID)
//	})
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/domain"
)

// CreateChat inserts a new Chat row. CreatedAt is set to UTC.
func CreateChat(ctx context.Context, db *gorm.DB, name string) (*domain.Chat, error) {
	c := &domain.Chat{
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// GetChatByName fetches a chat by its unique name, or ErrNotFound.
func GetChatByName(ctx context.Context, db *gorm.DB, name string) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("name = ?", name).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChatByID fetches a chat by primary key, or ErrNotFound.
func GetChatByID(ctx context.Context, db *gorm.DB, id uint) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// AddMember records an active membership of userID in chatID.
func AddMember(ctx context.Context, db *gorm.DB, chatID, userID uint, joinedAt time.Time) error {
	m := &domain.Membership{
		ChatID:   chatID,
		UserID:   userID,
		IsActive: true,
		JoinedAt: joinedAt.UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ListMembers returns the usernames of active members of chatID, in join order.
func ListMembers(ctx context.Context, db *gorm.DB, chatID uint) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Table("chat_users AS cu").
		Select("u.username").
		Joins("JOIN users u ON u.id = cu.user_id").
		Where("cu.chat_id = ? AND cu.is_active = ?", chatID, true).
		Order("cu.joined_at ASC, cu.id ASC").
		Scan(&out).Error
	return out, err
}
