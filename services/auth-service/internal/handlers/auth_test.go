package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slotbook/slotbook/libs/auth"
)

func TestPasswordHashing(t *testing.T) {
	password := "pass1234"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

func TestHS256SignerRoundTrip(t *testing.T) {
	signer := NewHS256Signer("unit-secret")

	token, err := signer.Sign(auth.Claims{
		Sub:       "user-1",
		CompanyID: "co-1",
		Role:      "owner",
		Iat:       time.Now().Unix(),
		Exp:       time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "user-1" || claims.CompanyID != "co-1" || claims.Role != "owner" {
		t.Fatalf("claims mismatch: %+v", claims)
	}

	if _, err := NewHS256Signer("other-secret").Verify(token); err == nil {
		t.Fatal("verify with wrong secret should fail")
	}
}

func TestMe(t *testing.T) {
	signer := NewHS256Signer("unit-secret")
	h := NewAuthHandler(signer, nil, nil, nil, nil, nil, time.Hour)

	token, err := signer.Sign(auth.Claims{
		Sub:       "user-1",
		CompanyID: "co-1",
		Role:      "owner",
		Iat:       time.Now().Unix(),
		Exp:       time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	for _, want := range []string{`"user_id":"user-1"`, `"company_id":"co-1"`, `"role":"owner"`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("missing %s in %s", want, rec.Body.String())
		}
	}
}

func TestMeRejectsBadTokens(t *testing.T) {
	h := NewAuthHandler(NewHS256Signer("unit-secret"), nil, nil, nil, nil, nil, time.Hour)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.Me(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: got %d, want 401", tt.name, rec.Code)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	h := NewAuthHandler(NewHS256Signer("unit-secret"), nil, nil, nil, nil, nil, time.Hour)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing email", `{"password":"pass1234"}`},
		{"missing password", `{"email":"jo@x.io"}`},
		{"short password", `{"email":"jo@x.io","password":"short"}`},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(tt.body))
		rec := httptest.NewRecorder()
		h.Register(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestJWKSUnavailableForHS256(t *testing.T) {
	h := NewAuthHandler(NewHS256Signer("unit-secret"), nil, nil, nil, nil, nil, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	h.JWKS(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}
