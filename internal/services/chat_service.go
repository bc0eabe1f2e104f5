// Package services – ChatService
//
// This file implements the ChatService, which creates chats together with
// their empty history cache and memberships, resolves chat names, and serves
// the history read path.
//
// Service-level errors (e.g., ErrChatNotFound, ErrNoHistory) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/domain"
	"github.com/tbourn/go-chat-queue/internal/repo"
)

// ChatService provides chat-level operations.
type ChatService struct {
	DB *gorm.DB
}

// History is a snapshot of a chat's delivered messages. Version identifies
// the snapshot and changes on every delivery.
type History struct {
	ChatID  uint
	Version int64
	Items   []domain.HistoryItem
}

// Create inserts the chat, its empty history cache and one membership per
// listed user in a single transaction. Any unknown user aborts the whole
// creation with ErrUserNotFound; a taken name yields ErrChatExists.
// Repeated usernames are collapsed.
func (s *ChatService) Create(ctx context.Context, name string, usernames []string) (*domain.Chat, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("chat.name", name),
			attribute.Int("chat.members", len(usernames)),
		),
	)
	defer span.End()

	chatName, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	members, err := dedupeNames(usernames)
	if err != nil {
		return nil, err
	}

	var chat *domain.Chat
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.CreateChat(ctx, tx, chatName)
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrChatExists
		}
		if err != nil {
			return err
		}
		if err := repo.InitHistory(ctx, tx, c.ID); err != nil {
			return err
		}
		joined := time.Now().UTC()
		for _, m := range members {
			uid, err := resolveUser(ctx, tx, m)
			if err != nil {
				return err
			}
			if err := repo.AddMember(ctx, tx, c.ID, uid, joined); err != nil {
				return err
			}
		}
		chat = c
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return chat, nil
}

// ResolveChat maps a chat name to its ID, or ErrChatNotFound.
func (s *ChatService) ResolveChat(ctx context.Context, name string) (uint, error) {
	return resolveChat(ctx, s.DB, name)
}

// Members lists the active members of a chat in join order.
func (s *ChatService) Members(ctx context.Context, name string) ([]string, error) {
	id, err := resolveChat(ctx, s.DB, name)
	if err != nil {
		return nil, err
	}
	out, err := repo.ListMembers(ctx, s.DB, id)
	if err != nil {
		return nil, storageErr(err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// History returns the materialized history of a chat. tail > 0 keeps only
// the last tail items. A missing chat is ErrChatNotFound; a chat without a
// cache row is ErrNoHistory; a chat with nothing delivered yet returns an
// empty, non-nil Items slice.
func (s *ChatService) History(ctx context.Context, name string, tail int) (*History, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("chat.name", name),
			attribute.Int("tail", tail),
		),
	)
	defer span.End()

	id, err := resolveChat(ctx, s.DB, name)
	if err != nil {
		return nil, err
	}
	h, err := repo.GetHistory(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, storageErr(err)
	}
	items, err := h.Items()
	if err != nil {
		return nil, err
	}
	if tail > 0 && len(items) > tail {
		items = items[len(items)-tail:]
	}
	span.SetAttributes(attribute.Int("history.len", len(items)))
	return &History{ChatID: id, Version: h.Version, Items: items}, nil
}

func resolveChat(ctx context.Context, db *gorm.DB, name string) (uint, error) {
	chatName, err := normalizeName(name)
	if err != nil {
		return 0, ErrChatNotFound
	}
	c, err := repo.GetChatByName(ctx, db, chatName)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, ErrChatNotFound
	}
	if err != nil {
		return 0, storageErr(err)
	}
	return c.ID, nil
}

func dedupeNames(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		n, err := normalizeName(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}
