// Package services – MessageService
//
// This file implements ingestion: a submitted message is validated, its chat
// and author are resolved, and the Processing message and its Queued
// delivery task are written in one transaction. Delivery into the chat's
// history happens later, in the worker.
//
// Observability: Submit is OpenTelemetry-instrumented; the span carries the
// chat and user names and, on success, the message and queue entry IDs.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/repo"
)

// MessageService handles message ingestion.
type MessageService struct {
	DB *gorm.DB

	// MaxContentRunes caps message length; 0 disables the check.
	MaxContentRunes int
	// IdempotencyTTL is how long an Idempotency-Key stays bound to its
	// message; 0 uses 24h.
	IdempotencyTTL time.Duration

	// Now overrides the enqueue clock in tests.
	Now func() time.Time
}

// Receipt identifies a durably enqueued message.
type Receipt struct {
	MessageID    uint
	QueueEntryID uint
	// Replayed is true when an Idempotency-Key matched an earlier submission
	// and nothing new was enqueued.
	Replayed bool
}

// Submit appends a message from username to chatName and enqueues it for
// delivery. It returns once both rows are committed. When idemKey is
// non-empty, a repeat of the same (user, chat, key) within the TTL returns
// the original receipt with Replayed set.
func (s *MessageService) Submit(ctx context.Context, chatName, username, content, idemKey string) (*Receipt, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("chat.name", chatName),
			attribute.String("user.name", username),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}
	idemKey = strings.TrimSpace(idemKey)

	var rcpt *Receipt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chatID, err := resolveChat(ctx, tx, chatName)
		if err != nil {
			return err
		}
		userID, err := resolveUser(ctx, tx, username)
		if err != nil {
			return err
		}
		if err := repo.LockHistory(ctx, tx, chatID); err != nil {
			return err
		}

		// Stamped under the chat lock: queued_at order is commit order.
		now := s.now()
		if idemKey != "" {
			prev, err := repo.GetIdempotency(ctx, tx, userID, chatID, idemKey, now)
			if err == nil {
				rcpt = &Receipt{MessageID: prev.MessageID, QueueEntryID: prev.QueueEntryID, Replayed: true}
				return nil
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}

		msg, err := repo.CreateMessage(ctx, tx, chatID, userID, content, now)
		if err != nil {
			return err
		}
		entry, err := repo.Enqueue(ctx, tx, msg, now)
		if err != nil {
			return err
		}
		if idemKey != "" {
			if _, err := repo.CreateIdempotency(ctx, tx, userID, chatID, idemKey, msg.ID, entry.ID, now, s.ttl()); err != nil {
				return err
			}
		}
		rcpt = &Receipt{MessageID: msg.ID, QueueEntryID: entry.ID}
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) && idemKey != "" {
		// A concurrent request with the same key committed first.
		return s.Replay(ctx, chatName, username, idemKey)
	}
	if err != nil {
		return nil, storageErr(err)
	}

	span.SetAttributes(
		attribute.Int64("message.id", int64(rcpt.MessageID)),
		attribute.Int64("queue_entry.id", int64(rcpt.QueueEntryID)),
		attribute.Bool("idempotency.replayed", rcpt.Replayed),
	)
	return rcpt, nil
}

// Replay returns the receipt bound to a live Idempotency-Key, or
// ErrNoReceipt.
func (s *MessageService) Replay(ctx context.Context, chatName, username, key string) (*Receipt, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrNoReceipt
	}
	chatID, err := resolveChat(ctx, s.DB, chatName)
	if err != nil {
		return nil, err
	}
	userID, err := resolveUser(ctx, s.DB, username)
	if err != nil {
		return nil, err
	}
	prev, err := repo.GetIdempotency(ctx, s.DB, userID, chatID, key, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoReceipt
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return &Receipt{MessageID: prev.MessageID, QueueEntryID: prev.QueueEntryID, Replayed: true}, nil
}

func (s *MessageService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MessageService) ttl() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}
