package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-chat-queue/internal/domain"
)

// InitHistory creates the empty cache row for a new chat.
func InitHistory(ctx context.Context, db *gorm.DB, chatID uint) error {
	h := &domain.HistoryCache{
		ChatID:    chatID,
		Messages:  "[]",
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(h).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetHistory returns the cache row of a chat, or ErrNotFound when the chat
// has none yet.
func GetHistory(ctx context.Context, db *gorm.DB, chatID uint) (*domain.HistoryCache, error) {
	var h domain.HistoryCache
	if err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&h).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

// LockHistory takes a row lock on the chat's cache row (SELECT ... FOR
// UPDATE) until the surrounding transaction ends. Writers to one chat are
// serialized behind it, so enqueue order and commit order agree. A chat
// without a cache row is not an error. SQLite ignores the locking clause;
// there the immediate transaction mode serializes writers instead.
func LockHistory(ctx context.Context, db *gorm.DB, chatID uint) error {
	var h domain.HistoryCache
	return db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("chat_id").
		Where("chat_id = ?", chatID).
		Limit(1).
		Find(&h).Error
}

// AppendHistory appends item to the cache row previously loaded into h and
// writes the whole sequence back, conditional on h.Version being unchanged.
// A concurrent writer makes the update miss and ErrStaleVersion is returned;
// the caller's transaction should then be rolled back and retried.
//
// On success h reflects the stored row and the stored item is returned
// (its timestamp may have been moved forward, see HistoryCache.Append).
func AppendHistory(ctx context.Context, db *gorm.DB, h *domain.HistoryCache, item domain.HistoryItem) (domain.HistoryItem, error) {
	next := *h
	stored, err := next.Append(item)
	if err != nil {
		return domain.HistoryItem{}, err
	}
	next.Version = h.Version + 1
	next.UpdatedAt = time.Now().UTC()

	res := db.WithContext(ctx).
		Model(&domain.HistoryCache{}).
		Where("chat_id = ? AND version = ?", h.ChatID, h.Version).
		Updates(map[string]any{
			"messages":   next.Messages,
			"version":    next.Version,
			"updated_at": next.UpdatedAt,
		})
	if res.Error != nil {
		return domain.HistoryItem{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.HistoryItem{}, ErrStaleVersion
	}
	*h = next
	return stored, nil
}
