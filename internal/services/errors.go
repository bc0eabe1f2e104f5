// Package services defines the business logic for accounts, chats and message
// ingestion. This file centralizes service-level error values so that they
// can be consistently returned by service methods and checked by callers with
// errors.Is.
//
// Every specific error wraps one of the kinds below; handlers map the kind
// to a status code and the specific error to a message.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-chat-queue/internal/repo"
)

// Error kinds.
var (
	// ErrNotFound: a chat or user identifier does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrConflict: a unique name is already taken.
	ErrConflict = errors.New("conflict")

	// ErrInvalid: the request is malformed (empty content, bad name, ...).
	ErrInvalid = errors.New("invalid")

	// ErrTransient: storage contention or timeout; the caller may retry.
	ErrTransient = errors.New("transient storage error")

	// ErrConsistency: stored data breaks a pipeline invariant, e.g. a queue
	// entry whose message no longer resolves. Never retried away silently.
	ErrConsistency = errors.New("consistency violation")
)

// Account errors.
var (
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrUsernameTaken = fmt.Errorf("username taken: %w", ErrConflict)
	ErrInvalidName   = fmt.Errorf("name must be 1-64 characters: %w", ErrInvalid)
	ErrBadPassword   = fmt.Errorf("password is empty or too long: %w", ErrInvalid)
)

// Chat errors.
var (
	ErrChatNotFound = fmt.Errorf("chat %w", ErrNotFound)
	ErrChatExists   = fmt.Errorf("chat name taken: %w", ErrConflict)

	// ErrNoHistory means the chat exists but has no cache row yet. It is
	// neither NotFound nor an empty history.
	ErrNoHistory = errors.New("no history yet")
)

// Message errors.
var (
	ErrEmptyContent = fmt.Errorf("content is empty: %w", ErrInvalid)
	ErrTooLong      = fmt.Errorf("content too long: %w", ErrInvalid)
	ErrNoReceipt    = fmt.Errorf("idempotency receipt %w", ErrNotFound)
)

// storageErr tags retryable storage failures with ErrTransient and passes
// everything else through.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if repo.IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
