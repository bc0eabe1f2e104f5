package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/domain"
)

// Enqueue appends a Queued delivery task for msg. It must run in the same
// transaction as the message insert.
func Enqueue(ctx context.Context, db *gorm.DB, msg *domain.Message, at time.Time) (*domain.QueueEntry, error) {
	e := &domain.QueueEntry{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		Direction: domain.DirectionInbound,
		Status:    domain.QueueQueued,
		QueuedAt:  at.UTC(),
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return e, nil
}

// PollOptions narrows PollQueued.
//
// Partitions > 1 restricts the result to chats with chat_id % Partitions ==
// Partition, so that each chat is owned by exactly one poller.
type PollOptions struct {
	Limit      int
	Now        time.Time
	Partitions int
	Partition  int
}

// PollQueued returns up to Limit Queued entries in FIFO order (queued_at,
// then id). A chat with a deferred entry (next_attempt_at after Now) is
// skipped entirely so that its later entries cannot overtake the deferred
// one.
func PollQueued(ctx context.Context, db *gorm.DB, opts PollOptions) ([]domain.QueueEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	q := db.WithContext(ctx).
		Table("queue_entries AS q").
		Select("q.*").
		Where("q.status = ?", domain.QueueQueued)
	if opts.Partitions > 1 {
		q = q.Where("q.chat_id % ? = ?", opts.Partitions, opts.Partition)
	}
	q = q.Where(`NOT EXISTS (
		SELECT 1 FROM queue_entries d
		WHERE d.chat_id = q.chat_id
		  AND d.status = ?
		  AND d.next_attempt_at IS NOT NULL
		  AND d.next_attempt_at > ?)`, domain.QueueQueued, now.UTC())

	var out []domain.QueueEntry
	err := q.Order("q.queued_at ASC, q.id ASC").Limit(limit).Scan(&out).Error
	return out, err
}

// FinishEntry transitions a Queued entry to Finished. The status predicate
// makes a second delivery of the same entry fail with ErrAlreadyFinished
// instead of silently succeeding.
func FinishEntry(ctx context.Context, db *gorm.DB, id uint, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.QueueEntry{}).
		Where("id = ? AND status = ?", id, domain.QueueQueued).
		Updates(map[string]any{
			"status":          domain.QueueFinished,
			"processed_at":    at.UTC(),
			"next_attempt_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyFinished
	}
	return nil
}

// DeferEntry records a failed delivery attempt and hides the entry (and the
// rest of its chat) from PollQueued until next.
func DeferEntry(ctx context.Context, db *gorm.DB, id uint, lastErr string, next time.Time) error {
	next = next.UTC()
	return db.WithContext(ctx).
		Model(&domain.QueueEntry{}).
		Where("id = ? AND status = ?", id, domain.QueueQueued).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      truncate(lastErr, 512),
			"next_attempt_at": next,
		}).Error
}

// GetEntry fetches a queue entry by ID, or ErrNotFound.
func GetEntry(ctx context.Context, db *gorm.DB, id uint) (*domain.QueueEntry, error) {
	var e domain.QueueEntry
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
