package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/repo"
)

// QueueService reports on the delivery queue.
type QueueService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Stats returns queue depth by state.
func (s *QueueService) Stats(ctx context.Context) (repo.QueueCounts, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	counts, err := repo.QueueStats(ctx, s.DB, now)
	return counts, storageErr(err)
}
