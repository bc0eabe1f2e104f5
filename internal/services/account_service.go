// Package services – AccountService
//
// AccountService owns account creation, login and the user lookups the
// ingestion pipeline depends on. Credential hashing is delegated to a
// Credentials implementation (see internal/password).
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/domain"
	"github.com/tbourn/go-chat-queue/internal/password"
	"github.com/tbourn/go-chat-queue/internal/repo"
)

// Credentials hashes and verifies passwords.
type Credentials interface {
	Hash(plain string) (string, error)
	Verify(encoded, plain string) (bool, error)
}

// AccountService manages user accounts.
type AccountService struct {
	DB     *gorm.DB
	Hasher Credentials
}

// Create registers username with the given password. A taken username
// returns ErrUsernameTaken and leaves the store unchanged.
func (s *AccountService) Create(ctx context.Context, username, plain string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Create")
	defer span.End()

	name, err := normalizeName(username)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.name", name))

	exists, err := repo.UserExists(ctx, s.DB, name)
	if err != nil {
		return nil, storageErr(err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := s.Hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidPassword) {
			return nil, ErrBadPassword
		}
		return nil, err
	}

	u, err := repo.CreateUser(ctx, s.DB, name, hash)
	if errors.Is(err, repo.ErrDuplicate) {
		// lost a race with a concurrent signup
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return u, nil
}

// Authenticate reports whether the credentials are valid. Unknown users and
// unreadable stored hashes are a plain false, not an error.
func (s *AccountService) Authenticate(ctx context.Context, username, plain string) (bool, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Authenticate")
	defer span.End()

	name, err := normalizeName(username)
	if err != nil {
		return false, nil
	}
	u, err := repo.GetUserByUsername(ctx, s.DB, name)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageErr(err)
	}

	ok, err := s.Hasher.Verify(u.PasswordHash, plain)
	if err != nil {
		span.AddEvent("invalid stored hash", trace.WithAttributes(attribute.Int64("user.id", int64(u.ID))))
		return false, nil
	}
	return ok, nil
}

// Exists reports whether username is taken.
func (s *AccountService) Exists(ctx context.Context, username string) (bool, error) {
	name, err := normalizeName(username)
	if err != nil {
		return false, nil
	}
	ok, err := repo.UserExists(ctx, s.DB, name)
	return ok, storageErr(err)
}

// ResolveUser maps a username to its ID, or ErrUserNotFound.
func (s *AccountService) ResolveUser(ctx context.Context, username string) (uint, error) {
	return resolveUser(ctx, s.DB, username)
}

func resolveUser(ctx context.Context, db *gorm.DB, username string) (uint, error) {
	name, err := normalizeName(username)
	if err != nil {
		return 0, ErrUserNotFound
	}
	u, err := repo.GetUserByUsername(ctx, db, name)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, storageErr(err)
	}
	return u.ID, nil
}
