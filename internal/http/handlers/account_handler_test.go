package handlers

import (
	"net/http"
	"testing"
)

func TestAccountEndpoints(t *testing.T) {
	e := newEnv(t)

	steps := []struct {
		path   string
		status int
		body   string
	}{
		{"/checkuser/username/alice", http.StatusOK, `{"Ok":"0"}`},
		{"/createaccount/username/alice/password/s3cret", http.StatusCreated, `{"Ok":"1"}`},
		{"/createaccount/username/alice/password/other", http.StatusConflict, `{"Err":"0"}`},
		{"/checkuser/username/alice", http.StatusOK, `{"Ok":"1"}`},
		{"/Authenticate/username/alice/password/s3cret", http.StatusOK, `{"Ok":"1"}`},
		{"/Authenticate/username/alice/password/wrong", http.StatusOK, `{"Ok":"0"}`},
		{"/Authenticate/username/ghost/password/s3cret", http.StatusOK, `{"Ok":"0"}`},
	}
	for _, s := range steps {
		w := e.do(t, http.MethodGet, s.path, "")
		if w.Code != s.status || w.Body.String() != s.body {
			t.Fatalf("%s: got %d %s; want %d %s", s.path, w.Code, w.Body.String(), s.status, s.body)
		}
	}
}

func TestCreateAccount_InvalidName(t *testing.T) {
	e := newEnv(t)
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	w := e.do(t, http.MethodGet, "/createaccount/username/"+string(long)+"/password/pw", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got := errBody(t, w); got.Code != ErrCodeBadRequest {
		t.Fatalf("unexpected body: %+v", got)
	}
}
