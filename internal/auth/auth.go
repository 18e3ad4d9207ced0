// Package auth implements the Authorizer: the cookie-based protected-domain
// gate in front of the Forward Pipeline, backed by the Token Store.
package auth

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webjingzi/mirror/internal/log"
	"github.com/webjingzi/mirror/internal/tokenstore"
)

// LoginPath is the reserved path for credential submission.
//
// Canonical per spec: some earlier revisions used /__wm__login, a typo;
// /__wj__login is the only spelling this implementation accepts.
const LoginPath = "/__wj__login"

// CookieName is the name of the session cookie issued on successful login.
const CookieName = "__wj_token"

// tokenTTL is the cookie lifetime: 3650 days from issuance, per spec.md
// §4.4. The store itself never expires tokens; only the cookie does.
const tokenTTL = 3650 * 24 * time.Hour

// Account is a single configured username/password pair compared for exact
// equality.
type Account struct {
	Username string
	Password string
}

//go:embed login.html
var loginPage []byte

// Authorizer decides per request whether a protected alias's gate applies,
// and handles the /__wj__login submit path and cookie validation.
type Authorizer struct {
	Enabled    bool
	DomainList []string
	Accounts   []Account
	Store      tokenstore.Store
}

// New constructs an Authorizer. store may be nil when enabled is false.
func New(enabled bool, domainList []string, accounts []Account, store tokenstore.Store) *Authorizer {
	return &Authorizer{
		Enabled:    enabled,
		DomainList: domainList,
		Accounts:   accounts,
		Store:      store,
	}
}

// IsProtected reports whether host qualifies as protected: the inbound host
// string contains any configured protected-domain substring. First match
// wins in declared order (the result is the same regardless, since this is
// a boolean).
func (a *Authorizer) IsProtected(host string) bool {
	if !a.Enabled {
		return false
	}
	for _, d := range a.DomainList {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

// Gate runs the Authorizer state machine for a request against a protected
// alias. It returns true if it fully handled the response (login submit or
// login page) and the caller must not invoke the Forward Pipeline; false
// means the request carried a valid cookie and should fall through.
func (a *Authorizer) Gate(w http.ResponseWriter, r *http.Request, alias string) bool {
	if r.URL.Path == LoginPath {
		a.handleLoginSubmit(w, r, alias)
		return true
	}

	token, ok := parseCookie(r.Header.Get("Cookie"))
	if ok {
		valid, err := a.Store.Contains(token)
		if err != nil {
			log.Error("auth: token store error", "error", err)
			http.Error(w, "token store error", http.StatusInternalServerError)
			return true
		}
		if valid {
			return false
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(loginPage)
	return true
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool `json:"success"`
}

func (a *Authorizer) handleLoginSubmit(w http.ResponseWriter, r *http.Request, alias string) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLoginResult(w, false)
		return
	}

	for _, acct := range a.Accounts {
		if acct.Username == req.Username && acct.Password == req.Password {
			token := uuid.New().String()
			if err := a.Store.Insert(token); err != nil {
				log.Error("auth: failed to persist token", "error", err)
				http.Error(w, "token store error", http.StatusInternalServerError)
				return
			}
			setSessionCookie(w, alias, token)
			writeLoginResult(w, true)
			return
		}
	}

	writeLoginResult(w, false)
}

func setSessionCookie(w http.ResponseWriter, alias, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Domain:   alias,
		Expires:  time.Now().Add(tokenTTL),
		Secure:   true,
		HttpOnly: true,
		Path:     "/",
	})
}

func writeLoginResult(w http.ResponseWriter, success bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(loginResponse{Success: success})
}

// parseCookie splits a Cookie header on "; ", each pair on the first "=",
// and returns the value for __wj_token if present.
func parseCookie(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	for _, pair := range strings.Split(header, "; ") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		if k == CookieName {
			return v, true
		}
	}
	return "", false
}

// ErrNoAccounts is returned by Validate when authorization is enabled but no
// accounts are configured -- a login gate nobody could ever pass.
var ErrNoAccounts = fmt.Errorf("authorization enabled with no configured accounts")

// Validate checks that an enabled Authorizer config is usable.
func (a *Authorizer) Validate() error {
	if a.Enabled && len(a.Accounts) == 0 {
		return ErrNoAccounts
	}
	return nil
}
