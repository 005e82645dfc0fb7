package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/moonheart/nodenexus-go/internal/auth"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"token":"fresh-token"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, auth.NewStaticProvider(""))
	token, err := c.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("Login token = %q, want fresh-token", token)
	}
}

func TestListScriptsSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		w.Write([]byte(`[{"id":1,"name":"disk","content":"df -h","workingDirectory":"/"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, auth.NewStaticProvider("tok"))
	scripts, err := c.ListScripts()
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if len(scripts) != 1 || scripts[0].Name != "disk" {
		t.Errorf("scripts = %+v", scripts)
	}
}

func TestUnauthorizedInvalidatesProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := auth.NewStaticProvider("stale")
	c := NewClient(srv.URL, provider)

	_, err := c.ListScripts()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ListScripts error = %v, want ErrUnauthorized", err)
	}
	if provider.Token() != "" {
		t.Error("provider still holds a token after a 401")
	}
}

func TestServerErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, auth.NewStaticProvider("tok"))
	if _, err := c.ListScripts(); err == nil {
		t.Error("ListScripts on 500 returned nil error")
	}
}
