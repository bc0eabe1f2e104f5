package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chat-queue/internal/http/middleware"
	"github.com/tbourn/go-chat-queue/internal/repo"
	"github.com/tbourn/go-chat-queue/internal/services"
	"github.com/tbourn/go-chat-queue/internal/worker"
)

// ---------- test plumbing ----------

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain:" + p, nil }
func (plainHasher) Verify(enc, p string) (bool, error) {
	return enc == "plain:"+p, nil
}

type testEnv struct {
	db     *gorm.DB
	r      *gin.Engine
	accSvc *services.AccountService
	chat   *services.ChatService
	msg    *services.MessageService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"))
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
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newEnv wires real services over a temp SQLite file and mounts the routes
// the way the router does, minus the ambient middleware.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	e := &testEnv{
		db:     db,
		accSvc: &services.AccountService{DB: db, Hasher: plainHasher{}},
		chat:   &services.ChatService{DB: db},
		msg:    &services.MessageService{DB: db, MaxContentRunes: 20},
	}
	h := New(e.accSvc, e.chat, e.msg, &services.QueueService{DB: db})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/queue/stats", h.QueueStats)
	r.GET("/Authenticate/username/:username/password/:password", h.Authenticate)
	r.GET("/createaccount/username/:username/password/:password", h.CreateAccount)
	r.GET("/checkuser/username/:username", h.CheckUser)
	r.GET("/createchat", h.CreateChat)
	r.GET("/getchat/chatname/:chat", h.GetChat)
	r.GET("/chatmembers/chatname/:chat", h.ChatMembers)
	r.POST("/newmessage/chatname/:chat/username/:user",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil), h.NewMessage)
	e.r = r
	return e
}

func (e *testEnv) do(t *testing.T, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, chat string, users ...string) {
	t.Helper()
	ctx := context.Background()
	for _, u := range users {
		if _, err := e.accSvc.Create(ctx, u, "pw"); err != nil {
			t.Fatalf("create user %s: %v", u, err)
		}
	}
	if chat != "" {
		if _, err := e.chat.Create(ctx, chat, users); err != nil {
			t.Fatalf("create chat: %v", err)
		}
	}
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	w := worker.New(e.db, worker.Config{}, worker.WithLogger(zerolog.Nop()))
	for {
		n, err := w.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		if n == 0 {
			return
		}
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}

// errBody decodes {"Err": {...}}.
func errBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var v struct {
		Err ErrorResponse `json:"Err"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v.Err
}

func mustContain(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Fatalf("%q does not contain %q", s, sub)
	}
}
