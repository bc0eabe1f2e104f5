package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHelpers_GetIdempotencyKey_IsReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}

	// Non-string key reads as absent
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("expected GetIdempotencyKey to be absent for non-string value")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("expected IsReplay=true")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false for non-bool")
	}
}

type lookupCall struct{ chat, user, key string }

// newIdemRouter mounts the validator on the posting route and echoes what
// the handler sees.
func newIdemRouter(opts IdempotencyOptions, lookup IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/newmessage/chatname/:chat/username/:user", IdempotencyValidator(opts, lookup), func(c *gin.Context) {
		k, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{"key": k, "replay": IsReplay(c)})
	})
	return r
}

func post(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/newmessage/chatname/general/username/alice", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_NoHeader_NoLookupCalled(t *testing.T) {
	called := false
	r := newIdemRouter(IdempotencyOptions{}, func(context.Context, string, string, string) (bool, error) {
		called = true
		return true, nil
	})
	w := post(r, "")
	if w.Code != http.StatusOK || called {
		t.Fatalf("no header: code=%d lookup called=%v", w.Code, called)
	}
	if !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestIdempotencyValidator_InvalidKey(t *testing.T) {
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"length", IdempotencyOptions{MaxLen: 4}, "abcde"},
		{"default pattern", IdempotencyOptions{}, "has space"},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := post(newIdemRouter(c.opts, nil), c.key)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d", w.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["code"] != "bad_idempotency_key" {
				t.Fatalf("body: %v %v", body, err)
			}
		})
	}
}

func TestIdempotencyValidator_Valid_NoLookup(t *testing.T) {
	w := post(newIdemRouter(IdempotencyOptions{}, nil), "7a8d9f4c-1b2a:v1")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"key":"7a8d9f4c-1b2a:v1"`) ||
		!strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("unexpected: %d %s", w.Code, w.Body.String())
	}
}

func TestIdempotencyValidator_Valid_WithLookup_MissHitAndError(t *testing.T) {
	var calls []lookupCall
	results := map[string]struct {
		ok  bool
		err error
	}{
		"miss": {false, nil},
		"hit":  {true, nil},
		"err":  {false, errors.New("db down")},
	}
	r := newIdemRouter(IdempotencyOptions{}, func(_ context.Context, chat, user, key string) (bool, error) {
		calls = append(calls, lookupCall{chat, user, key})
		res := results[key]
		return res.ok, res.err
	})

	for key, wantReplay := range map[string]bool{"miss": false, "hit": true, "err": false} {
		w := post(r, key)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status=%d", key, w.Code)
		}
		want := `"replay":false`
		if wantReplay {
			want = `"replay":true`
		}
		if !strings.Contains(w.Body.String(), want) {
			t.Fatalf("%s: body %s", key, w.Body.String())
		}
	}
	for _, c := range calls {
		if c.chat != "general" || c.user != "alice" {
			t.Fatalf("lookup scoped wrong: %+v", c)
		}
	}
	if len(calls) != 3 {
		t.Fatalf("lookup calls = %d", len(calls))
	}
}

func TestIdempotencyValidator_CustomParamNames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got lookupCall
	r := gin.New()
	r.POST("/c/:room/u/:who", IdempotencyValidator(
		IdempotencyOptions{ChatParam: "room", UserParam: "who"},
		func(_ context.Context, chat, user, key string) (bool, error) {
			got = lookupCall{chat, user, key}
			return false, nil
		},
	), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/c/lobby/u/bob", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if got != (lookupCall{"lobby", "bob", "k"}) {
		t.Fatalf("lookup got %+v", got)
	}
}
