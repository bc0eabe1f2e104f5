// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries over the
// delivery queue, used by the /queue/stats endpoint and the worker's
// depth gauge.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/domain"
)

// QueueCounts is a snapshot of queue depth by state. Deferred entries are
// Queued entries whose next attempt lies in the future; they are counted in
// Queued as well.
type QueueCounts struct {
	Queued   int64 `json:"queued"`
	Deferred int64 `json:"deferred"`
	Finished int64 `json:"finished"`
}

// QueueStats counts queue entries by status as of now.
func QueueStats(ctx context.Context, db *gorm.DB, now time.Time) (QueueCounts, error) {
	var out QueueCounts

	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.QueueEntry{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return out, err
	}
	for _, r := range rows {
		switch domain.QueueStatus(r.Status) {
		case domain.QueueQueued:
			out.Queued = r.N
		case domain.QueueFinished:
			out.Finished = r.N
		}
	}

	if out.Queued == 0 {
		return out, nil
	}
	err = db.WithContext(ctx).
		Model(&domain.QueueEntry{}).
		Where("status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at > ?", domain.QueueQueued, now.UTC()).
		Count(&out.Deferred).Error
	return out, err
}
