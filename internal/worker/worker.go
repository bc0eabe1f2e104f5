// Package worker implements the delivery side of the message pipeline: it
// polls Queued entries in FIFO order and, for each one, appends the message
// to its chat's history cache and retires the entry and the message in a
// single transaction.
//
// Several workers may run at once as long as each owns a disjoint set of
// chats (see Config.Partitions and Pool). The cache write is additionally
// guarded by an optimistic version check, so an accidental overlap rolls
// back instead of losing an update.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/domain"
	"github.com/tbourn/go-chat-queue/internal/repo"
	"github.com/tbourn/go-chat-queue/internal/services"
)

// txTimeout bounds one delivery transaction. It is not tied to the Run
// context, so shutdown never interrupts a transaction half way.
const txTimeout = 30 * time.Second

// Config tunes a Worker. Zero values take the defaults noted per field.
type Config struct {
	// BatchSize is the maximum number of entries per poll (5).
	BatchSize int
	// PollInterval is the wait after an empty poll (5s).
	PollInterval time.Duration
	// MaxAttempts bounds in-pass retries of transient failures (5).
	MaxAttempts int
	// RetryBackoff is the first retry delay; it doubles per attempt (100ms).
	RetryBackoff time.Duration
	// RetryMaxDelay caps every retry and deferral delay (5m).
	RetryMaxDelay time.Duration

	// Partitions > 1 restricts the worker to chats with
	// chat_id % Partitions == Partition.
	Partitions int
	Partition  int
}

func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 5 * time.Minute
	}
	if c.Partitions <= 1 {
		c.Partitions, c.Partition = 1, 0
	}
	return c
}

// backoff returns RetryBackoff doubled attempt-1 times, capped at
// RetryMaxDelay.
func (c Config) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return c.RetryMaxDelay
	}
	d := c.RetryBackoff << (attempt - 1)
	if d <= 0 || d > c.RetryMaxDelay {
		return c.RetryMaxDelay
	}
	return d
}

// Delivery describes a committed delivery.
type Delivery struct {
	ChatID       uint               `json:"chat_id"`
	ChatName     string             `json:"chat"`
	MessageID    uint               `json:"message_id"`
	QueueEntryID uint               `json:"queue_entry_id"`
	Version      int64              `json:"version"`
	Item         domain.HistoryItem `json:"item"`
}

// Publisher is notified after each delivery commits. Errors are logged and
// otherwise ignored: the history cache is already updated.
type Publisher interface {
	Publish(ctx context.Context, d Delivery) error
}

// Worker delivers queued messages. Use New to construct one.
type Worker struct {
	db  *gorm.DB
	cfg Config
	log zerolog.Logger
	pub Publisher
	now func() time.Time

	// afterAppend runs inside the delivery transaction right after the cache
	// write. Tests use it to fail the step between cache write and status
	// transition.
	afterAppend func(tx *gorm.DB, e domain.QueueEntry) error
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger (default: the global zerolog logger).
func WithLogger(l zerolog.Logger) Option { return func(w *Worker) { w.log = l } }

// WithPublisher sets the post-commit notification sink.
func WithPublisher(p Publisher) Option { return func(w *Worker) { w.pub = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(w *Worker) { w.now = now } }

// New returns a Worker over db.
func New(db *gorm.DB, cfg Config, opts ...Option) *Worker {
	w := &Worker{
		db:  db,
		cfg: cfg.normalized(),
		log: log.Logger,
		now: time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	w.log = w.log.With().Str("component", "delivery_worker").Logger()
	if w.cfg.Partitions > 1 {
		w.log = w.log.With().Int("partition", w.cfg.Partition).Int("partitions", w.cfg.Partitions).Logger()
	}
	return w
}

// Run polls and delivers until ctx is cancelled. The context is checked
// before each poll and between entries; the wait after an empty poll returns
// as soon as ctx is done. A transaction already started always completes.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().
		Int("batch_size", w.cfg.BatchSize).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("delivery worker started")
	defer w.log.Info().Msg("delivery worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, progressed, err := w.pass(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error().Err(err).Msg("poll queue")
		}
		// Entries that were polled but neither delivered nor skipped may
		// come straight back (a failed deferral), so only progress polls
		// again without waiting.
		if err == nil && progressed > 0 {
			continue
		}
		if !sleep(ctx, w.cfg.PollInterval) {
			return nil
		}
	}
}

// RunOnce runs a single poll-and-deliver pass and returns the number of
// entries the poll returned.
//
// Once an entry of a chat is not delivered in this pass, the chat's later
// entries in the same batch are left for a later pass so that they never
// overtake it.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	polled, _, err := w.pass(ctx)
	return polled, err
}

// pass polls once and processes the batch. It returns the number of entries
// polled and how many of them were delivered or found already finished.
func (w *Worker) pass(ctx context.Context) (polled, progressed int, err error) {
	entries, err := repo.PollQueued(ctx, w.db, repo.PollOptions{
		Limit:      w.cfg.BatchSize,
		Now:        w.now(),
		Partitions: w.cfg.Partitions,
		Partition:  w.cfg.Partition,
	})
	if err != nil {
		return 0, 0, err
	}
	if len(entries) > 0 {
		w.log.Debug().Int("entries", len(entries)).Msg("polled queue")
	}

	blocked := make(map[uint]bool)
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if blocked[e.ChatID] {
			continue
		}
		switch w.process(ctx, e) {
		case outcomeDelivered, outcomeSkipped:
			progressed++
		default:
			blocked[e.ChatID] = true
		}
	}
	return len(entries), progressed, nil
}

// outcomeCancelled is returned by process when shutdown interrupted the
// retry wait; the entry stays Queued as it was.
const outcomeCancelled = "cancelled"

// process delivers e, retrying transient failures with backoff. After
// MaxAttempts it defers the entry. It returns the outcome label.
func (w *Worker) process(ctx context.Context, e domain.QueueEntry) string {
	lg := w.log.With().
		Uint("queue_entry_id", e.ID).
		Uint("message_id", e.MessageID).
		Uint("chat_id", e.ChatID).
		Logger()

	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		d, err := w.deliver(ctx, e)
		switch {
		case err == nil:
			deliveries.WithLabelValues(outcomeDelivered).Inc()
			lg.Debug().Int("attempt", attempt).Int64("version", d.Version).Msg("delivered")
			w.publish(ctx, lg, d)
			return outcomeDelivered

		case errors.Is(err, repo.ErrAlreadyFinished):
			deliveries.WithLabelValues(outcomeSkipped).Inc()
			lg.Debug().Msg("entry already finished")
			return outcomeSkipped

		case errors.Is(err, services.ErrConsistency):
			deliveries.WithLabelValues(outcomeConsistency).Inc()
			lg.Error().Err(err).Msg("consistency violation; entry held back")
			w.deferEntry(lg, e, err, w.cfg.RetryMaxDelay)
			return outcomeConsistency

		case repo.IsTransient(err):
			lastErr = err
			if attempt == w.cfg.MaxAttempts {
				break
			}
			retries.Inc()
			delay := w.cfg.backoff(attempt)
			lg.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("transient delivery failure")
			if !sleep(ctx, delay) {
				return outcomeCancelled
			}

		default:
			lastErr = err
			attempt = w.cfg.MaxAttempts
			lg.Error().Err(err).Msg("delivery failed")
		}
	}

	deliveries.WithLabelValues(outcomeDeferred).Inc()
	delay := w.cfg.backoff(w.cfg.MaxAttempts + e.Attempts)
	lg.Warn().Err(lastErr).Int("attempts", e.Attempts+1).Dur("retry_in", delay).Msg("delivery deferred")
	w.deferEntry(lg, e, lastErr, delay)
	return outcomeDeferred
}

// deliver runs the delivery step for e as one transaction: append to the
// chat's history, mark the entry Finished and the message Sent.
func (w *Worker) deliver(ctx context.Context, e domain.QueueEntry) (Delivery, error) {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), txTimeout)
	defer cancel()

	txCtx, span := otel.Tracer("worker/Worker").Start(txCtx, "deliver",
		trace.WithAttributes(
			attribute.Int64("queue_entry.id", int64(e.ID)),
			attribute.Int64("message.id", int64(e.MessageID)),
			attribute.Int64("chat.id", int64(e.ChatID)),
		),
	)
	defer span.End()

	start := time.Now()
	var d Delivery
	err := w.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(txCtx, tx, e.MessageID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: queue entry %d references missing message %d", services.ErrConsistency, e.ID, e.MessageID)
		}
		if err != nil {
			return err
		}
		user, err := repo.GetUserByID(txCtx, tx, msg.UserID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: message %d references missing user %d", services.ErrConsistency, msg.ID, msg.UserID)
		}
		if err != nil {
			return err
		}
		chat, err := repo.GetChatByID(txCtx, tx, msg.ChatID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: message %d references missing chat %d", services.ErrConsistency, msg.ID, msg.ChatID)
		}
		if err != nil {
			return err
		}
		h, err := repo.GetHistory(txCtx, tx, chat.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: chat %d has no history cache", services.ErrConsistency, chat.ID)
		}
		if err != nil {
			return err
		}

		now := w.now().UTC()
		item, err := repo.AppendHistory(txCtx, tx, h, domain.HistoryItem{
			Username:  user.Username,
			Content:   msg.Content,
			CreatedAt: now,
		})
		if err != nil {
			if repo.IsTransient(err) {
				return err
			}
			return fmt.Errorf("%w: chat %d history unreadable: %v", services.ErrConsistency, chat.ID, err)
		}
		if w.afterAppend != nil {
			if err := w.afterAppend(tx, e); err != nil {
				return err
			}
		}

		if err := repo.FinishEntry(txCtx, tx, e.ID, now); err != nil {
			return err
		}
		if err := repo.MarkMessageSent(txCtx, tx, msg.ID, now); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: message %d of queued entry %d is not Processing", services.ErrConsistency, msg.ID, e.ID)
			}
			return err
		}

		d = Delivery{
			ChatID:       chat.ID,
			ChatName:     chat.Name,
			MessageID:    msg.ID,
			QueueEntryID: e.ID,
			Version:      h.Version,
			Item:         item,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Delivery{}, err
	}
	deliveryLat.Observe(time.Since(start).Seconds())
	return d, nil
}

func (w *Worker) deferEntry(lg zerolog.Logger, e domain.QueueEntry, cause error, delay time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), txTimeout)
	defer cancel()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := repo.DeferEntry(ctx, w.db, e.ID, msg, w.now().Add(delay)); err != nil {
		lg.Error().Err(err).Msg("defer entry")
	}
}

func (w *Worker) publish(ctx context.Context, lg zerolog.Logger, d Delivery) {
	if w.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := w.pub.Publish(ctx, d); err != nil {
		lg.Warn().Err(err).Msg("publish delivery")
	}
}

// sleep waits for d or until ctx is done; it reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
