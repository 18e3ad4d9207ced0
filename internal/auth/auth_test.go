package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/webjingzi/mirror/internal/tokenstore"
)

func newTestAuthorizer() *Authorizer {
	return New(true, []string{"mirror.local"}, []Account{{Username: "a", Password: "b"}}, tokenstore.NewMemStore())
}

func TestIsProtected(t *testing.T) {
	a := newTestAuthorizer()
	if !a.IsProtected("mirror.local") {
		t.Error("expected mirror.local to be protected")
	}
	if a.IsProtected("other.local") {
		t.Error("expected other.local to not be protected")
	}
}

func TestGateMissingCookieServesLoginPage(t *testing.T) {
	a := newTestAuthorizer()
	req := httptest.NewRequest(http.MethodGet, "http://mirror.local/any", nil)
	w := httptest.NewRecorder()

	handled := a.Gate(w, req, "mirror.local")
	if !handled {
		t.Fatal("expected Gate to fully handle the request")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected text/html content type, got %q", w.Header().Get("Content-Type"))
	}
}

func TestLoginFlow(t *testing.T) {
	a := newTestAuthorizer()

	body := strings.NewReader(`{"username":"a","password":"b"}`)
	req := httptest.NewRequest(http.MethodPost, "http://mirror.local"+LoginPath, body)
	w := httptest.NewRecorder()

	handled := a.Gate(w, req, "mirror.local")
	if !handled {
		t.Fatal("expected login submit to be handled")
	}
	if !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("expected success response, got %s", w.Body.String())
	}

	setCookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(setCookie, CookieName+"=") {
		t.Fatalf("expected Set-Cookie to carry %s, got %q", CookieName, setCookie)
	}
	if !strings.Contains(setCookie, "Domain=mirror.local") {
		t.Fatalf("expected cookie Domain=mirror.local, got %q", setCookie)
	}

	token := extractCookieValue(setCookie)
	req2 := httptest.NewRequest(http.MethodGet, "http://mirror.local/any", nil)
	req2.Header.Set("Cookie", CookieName+"="+token)
	w2 := httptest.NewRecorder()
	if handled := a.Gate(w2, req2, "mirror.local"); handled {
		t.Fatal("expected valid cookie to fall through to forward pipeline")
	}
}

func TestLoginFlowWrongCredentials(t *testing.T) {
	a := newTestAuthorizer()
	body := strings.NewReader(`{"username":"a","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "http://mirror.local"+LoginPath, body)
	w := httptest.NewRecorder()

	a.Gate(w, req, "mirror.local")
	if !strings.Contains(w.Body.String(), `"success":false`) {
		t.Fatalf("expected failure response, got %s", w.Body.String())
	}
}

func extractCookieValue(setCookie string) string {
	first := strings.SplitN(setCookie, ";", 2)[0]
	_, v, _ := strings.Cut(first, "=")
	return v
}
