package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chat-queue/internal/domain"
	"github.com/tbourn/go-chat-queue/internal/password"
	"github.com/tbourn/go-chat-queue/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeHasher stores "hash:<plain>" so tests do not pay for Argon2.
type fakeHasher struct {
	hashErr error
}

func (f fakeHasher) Hash(plain string) (string, error) {
	if f.hashErr != nil {
		return "", f.hashErr
	}
	return "hash:" + plain, nil
}

func (fakeHasher) Verify(encoded, plain string) (bool, error) {
	if !strings.HasPrefix(encoded, "hash:") {
		return false, password.ErrInvalidHash
	}
	return encoded == "hash:"+plain, nil
}

func newAccounts(t *testing.T, db *gorm.DB) *AccountService {
	t.Helper()
	return &AccountService{DB: db, Hasher: fakeHasher{}}
}

func mustCreateUser(t *testing.T, s *AccountService, name string) *domain.User {
	t.Helper()
	u, err := s.Create(context.Background(), name, "pw")
	if err != nil {
		t.Fatalf("create user %q: %v", name, err)
	}
	return u
}

// ---------- Create ----------

func TestAccountService_Create_UniqueUsername(t *testing.T) {
	db := newSvcDB(t)
	s := newAccounts(t, db)
	ctx := context.Background()

	u := mustCreateUser(t, s, "alice")
	if u.PasswordHash != "hash:pw" {
		t.Fatalf("password not hashed through Hasher: %q", u.PasswordHash)
	}

	_, err := s.Create(ctx, "alice", "other")
	if !errors.Is(err, ErrUsernameTaken) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrUsernameTaken (Conflict), got %v", err)
	}

	var n int64
	db.Model(&domain.User{}).Count(&n)
	if n != 1 {
		t.Fatalf("store changed on conflict: %d users", n)
	}
	stored, _ := repo.GetUserByUsername(ctx, db, "alice")
	if stored.PasswordHash != "hash:pw" {
		t.Fatalf("original credentials overwritten: %q", stored.PasswordHash)
	}
}

func TestAccountService_Create_NormalizesName(t *testing.T) {
	db := newSvcDB(t)
	s := newAccounts(t, db)

	// "é" precomposed vs. "e" + combining acute
	mustCreateUser(t, s, "  Jose\u0301 ")
	if _, err := s.Create(context.Background(), "Jos\u00e9", "pw"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("NFC-equivalent name should collide, got %v", err)
	}
}

func TestAccountService_Create_Invalid(t *testing.T) {
	db := newSvcDB(t)
	s := newAccounts(t, db)
	ctx := context.Background()

	if _, err := s.Create(ctx, "   ", "pw"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("blank name: expected ErrInvalidName, got %v", err)
	}
	if _, err := s.Create(ctx, strings.Repeat("x", MaxNameRunes+1), "pw"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("long name: expected ErrInvalidName, got %v", err)
	}

	s.Hasher = fakeHasher{hashErr: password.ErrInvalidPassword}
	if _, err := s.Create(ctx, "bob", ""); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
}

// ---------- Authenticate / Exists / ResolveUser ----------

func TestAccountService_Authenticate(t *testing.T) {
	db := newSvcDB(t)
	s := newAccounts(t, db)
	ctx := context.Background()
	mustCreateUser(t, s, "alice")

	cases := []struct {
		user, pw string
		want     bool
	}{
		{"alice", "pw", true},
		{"alice", "nope", false},
		{"ghost", "pw", false},
		{"", "pw", false},
	}
	for _, c := range cases {
		got, err := s.Authenticate(ctx, c.user, c.pw)
		if err != nil || got != c.want {
			t.Fatalf("Authenticate(%q,%q) = %v, %v; want %v", c.user, c.pw, got, err, c.want)
		}
	}

	// corrupt stored hash: false, no error
	db.Model(&domain.User{}).Where("username = ?", "alice").Update("password_hash", "garbage")
	if ok, err := s.Authenticate(ctx, "alice", "pw"); ok || err != nil {
		t.Fatalf("corrupt hash: got %v, %v", ok, err)
	}
}

func TestAccountService_ExistsAndResolve(t *testing.T) {
	db := newSvcDB(t)
	s := newAccounts(t, db)
	ctx := context.Background()
	u := mustCreateUser(t, s, "alice")

	if ok, err := s.Exists(ctx, "alice"); !ok || err != nil {
		t.Fatalf("Exists(alice) = %v, %v", ok, err)
	}
	if ok, err := s.Exists(ctx, "bob"); ok || err != nil {
		t.Fatalf("Exists(bob) = %v, %v", ok, err)
	}

	id, err := s.ResolveUser(ctx, "alice")
	if err != nil || id != u.ID {
		t.Fatalf("ResolveUser(alice) = %d, %v", id, err)
	}
	if _, err := s.ResolveUser(ctx, "bob"); !errors.Is(err, ErrUserNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAccountService_WithArgon2(t *testing.T) {
	db := newSvcDB(t)
	s := &AccountService{DB: db, Hasher: password.New(password.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})}
	ctx := context.Background()

	if _, err := s.Create(ctx, "carol", "hunter2"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, _ := s.Authenticate(ctx, "carol", "hunter2"); !ok {
		t.Fatalf("expected successful login")
	}
	if ok, _ := s.Authenticate(ctx, "carol", "hunter3"); ok {
		t.Fatalf("expected failed login")
	}
}
