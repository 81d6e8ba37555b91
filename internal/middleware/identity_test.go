package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{Sub: "u-1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT error: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil || claims.Sub != "u-1" {
		t.Fatalf("VerifyJWT = %+v, %v", claims, err)
	}
	if _, err := VerifyJWT("other", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret error = %v", err)
	}

	expired, _ := SignJWT("secret", TokenClaims{Sub: "u-1", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := VerifyJWT("secret", expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired error = %v", err)
	}
}

func TestIdentityResolvesOwner(t *testing.T) {
	valid, _ := SignJWT("secret", TokenClaims{Sub: "u-9"})
	tests := []struct {
		name   string
		auth   string
		client string
		want   string
	}{
		{name: "bearer token", auth: "Bearer " + valid, client: "abc", want: "user:u-9"},
		{name: "client id", client: "3f2c-aa_01", want: "client:3f2c-aa_01"},
		{name: "bad token falls back to client id", auth: "Bearer nope", client: "abc", want: "client:abc"},
		{name: "malformed client id", client: "a b/c", want: ""},
		{name: "nothing", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			h := Identity("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = OwnerFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			if tc.client != "" {
				req.Header.Set(ClientIDHeader, tc.client)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.want {
				t.Fatalf("owner = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIdentityIgnoresTokensWithoutSecret(t *testing.T) {
	token, _ := SignJWT("", TokenClaims{Sub: "forged"})
	var got string
	h := Identity("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = OwnerFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "" {
		t.Fatalf("owner = %q, want none", got)
	}
}

func TestRequireOwner(t *testing.T) {
	called := false
	h := RequireOwner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gallery", nil))
	if rec.Code != http.StatusUnauthorized || called {
		t.Fatalf("status = %d, called = %v", rec.Code, called)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/gallery", nil)
	req = req.WithContext(ContextWithOwner(req.Context(), "client:x"))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("expected handler to run with an owner")
	}
}
