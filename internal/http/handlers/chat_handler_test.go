package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/tbourn/go-chat-queue/internal/domain"
	"github.com/tbourn/go-chat-queue/internal/repo"
)

func TestCreateChat_SuccessAndErrors(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "", "alice", "bob")

	w := e.do(t, http.MethodGet, "/createchat?name=general&user=alice&user=bob", "")
	if w.Code != http.StatusCreated || w.Body.String() != `{"Ok":null}` {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}

	cases := []struct {
		name, path string
		status     int
		code       string
	}{
		{"missing name", "/createchat?user=alice", http.StatusBadRequest, ErrCodeBadRequest},
		{"duplicate", "/createchat?name=general&user=alice", http.StatusConflict, ErrCodeConflict},
		{"unknown member", "/createchat?name=other&user=alice&user=ghost", http.StatusNotFound, ErrCodeNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := e.do(t, http.MethodGet, c.path, "")
			if w.Code != c.status {
				t.Fatalf("status=%d want %d (%s)", w.Code, c.status, w.Body.String())
			}
			if got := errBody(t, w); got.Code != c.code || got.RequestID == "" {
				t.Fatalf("unexpected error body: %+v", got)
			}
		})
	}

	// The failed creation left nothing behind.
	if _, err := repo.GetChatByName(context.Background(), e.db, "other"); err == nil {
		t.Fatalf("chat with unknown member should not exist")
	}
}

func TestGetChat_DeliveredHistoryInOrder(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "general", "alice", "bob")

	for _, p := range []struct{ user, content string }{{"alice", "hi"}, {"bob", "yo"}} {
		w := e.do(t, http.MethodPost, "/newmessage/chatname/general/username/"+p.user, `{"content":"`+p.content+`"}`)
		if w.Code != http.StatusAccepted {
			t.Fatalf("post: %d %s", w.Code, w.Body.String())
		}
	}

	// Nothing is visible before delivery.
	w := e.do(t, http.MethodGet, "/getchat/chatname/general", "")
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("before drain: %d %s", w.Code, w.Body.String())
	}

	e.drain(t)

	w = e.do(t, http.MethodGet, "/getchat/chatname/general", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	items := decode[[]domain.HistoryItem](t, w)
	if len(items) != 2 || items[0].Username != "alice" || items[0].Content != "hi" ||
		items[1].Username != "bob" || items[1].Content != "yo" {
		t.Fatalf("unexpected history: %+v", items)
	}
	if !items[0].CreatedAt.Before(items[1].CreatedAt) {
		t.Fatalf("timestamps not increasing: %v !< %v", items[0].CreatedAt, items[1].CreatedAt)
	}

	w = e.do(t, http.MethodGet, "/getchat/chatname/general?tail=1", "")
	tail := decode[[]domain.HistoryItem](t, w)
	if len(tail) != 1 || tail[0].Content != "yo" {
		t.Fatalf("tail=1: %+v", tail)
	}
}

func TestGetChat_ETag304(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "general", "alice")

	w := e.do(t, http.MethodGet, "/getchat/chatname/general", "")
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	mustContain(t, etag, `W/"chat-`)

	w = e.do(t, http.MethodGet, "/getchat/chatname/general", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("want 304, got %d", w.Code)
	}

	// A delivery bumps the version and invalidates the tag.
	e.do(t, http.MethodPost, "/newmessage/chatname/general/username/alice", `{"content":"x"}`)
	e.drain(t)
	w = e.do(t, http.MethodGet, "/getchat/chatname/general", "", "If-None-Match", etag)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("stale ETag still matched: %d %s", w.Code, w.Header().Get("ETag"))
	}
}

func TestGetChat_MissingChatAndNoHistory(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/getchat/chatname/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing chat: %d", w.Code)
	}
	if got := decode[ErrorResponse](t, w); got.Code != ErrCodeNotFound {
		t.Fatalf("unexpected body: %+v", got)
	}

	// A chat row without a history cache row.
	if _, err := repo.CreateChat(context.Background(), e.db, "bare"); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	w = e.do(t, http.MethodGet, "/getchat/chatname/bare", "")
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("no history: %d %q", w.Code, w.Body.String())
	}
}

func TestChatMembers(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "general", "alice", "bob")

	w := e.do(t, http.MethodGet, "/chatmembers/chatname/general", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got := decode[[]string](t, w); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("members: %v", got)
	}

	if w := e.do(t, http.MethodGet, "/chatmembers/chatname/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing chat: %d", w.Code)
	}
}
