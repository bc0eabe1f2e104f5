package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/repo"
)

// Pool runs one Worker per partition plus a housekeeping loop that refreshes
// the queue depth gauge and purges expired idempotency records.
type Pool struct {
	db       *gorm.DB
	workers  []*Worker
	log      zerolog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewPool builds n partitioned workers (n < 1 means 1) sharing cfg and opts.
// Housekeeping runs every interval; zero means 15s.
func NewPool(db *gorm.DB, n int, cfg Config, interval time.Duration, opts ...Option) *Pool {
	if n < 1 {
		n = 1
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	base := &Worker{log: log.Logger, now: time.Now}
	for _, o := range opts {
		o(base)
	}
	p := &Pool{
		db:       db,
		log:      base.log.With().Str("component", "worker_pool").Logger(),
		interval: interval,
		now:      base.now,
	}
	for i := 0; i < n; i++ {
		c := cfg
		c.Partitions, c.Partition = n, i
		p.workers = append(p.workers, New(db, c, opts...))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Run starts every worker and blocks until ctx is cancelled and all of them
// have returned.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			_ = w.Run(ctx)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.housekeep(ctx)
	}()

	wg.Wait()
	return nil
}

func (p *Pool) housekeep(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one housekeeping round.
func (p *Pool) Tick(ctx context.Context) {
	now := p.now()
	if counts, err := repo.QueueStats(ctx, p.db, now); err != nil {
		if ctx.Err() == nil {
			p.log.Warn().Err(err).Msg("queue stats")
		}
	} else {
		queueDepth.WithLabelValues("queued").Set(float64(counts.Queued))
		queueDepth.WithLabelValues("deferred").Set(float64(counts.Deferred))
		queueDepth.WithLabelValues("finished").Set(float64(counts.Finished))
	}

	n, err := repo.PurgeExpiredIdempotency(ctx, p.db, now)
	switch {
	case err != nil && ctx.Err() == nil:
		p.log.Warn().Err(err).Msg("purge idempotency records")
	case n > 0:
		p.log.Debug().Int64("purged", n).Msg("purged expired idempotency records")
	}
}
