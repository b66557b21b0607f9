package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerifyHS256(t *testing.T) {
	claims := Claims{
		Sub:       "user-1",
		CompanyID: "company-1",
		Role:      "OWNER",
		Iat:       time.Now().Unix(),
		Exp:       time.Now().Add(time.Hour).Unix(),
	}

	token, err := SignHS256(claims, "test-secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := ParseAndVerifyHS256(token, "test-secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Sub != claims.Sub || got.CompanyID != claims.CompanyID || got.Role != claims.Role {
		t.Fatalf("claims mismatch: %+v", got)
	}
}

func TestVerifyHS256RejectsWrongSecret(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "u", Exp: time.Now().Add(time.Hour).Unix()}, "secret-a")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "secret-b"); err != ErrInvalidToken {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestVerifyHS256RejectsExpired(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "u", Exp: time.Now().Add(-time.Minute).Unix()}, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "secret"); err != ErrInvalidToken {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestVerifyHS256RejectsTamperedPayload(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "u", Role: "STAFF", Exp: time.Now().Add(time.Hour).Unix()}, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parts := strings.Split(token, ".")
	forged, _ := json.Marshal(Claims{Sub: "u", Role: "OWNER", Exp: time.Now().Add(time.Hour).Unix()})
	parts[1] = base64.RawURLEncoding.EncodeToString(forged)
	if _, err := ParseAndVerifyHS256(strings.Join(parts, "."), "secret"); err != ErrInvalidToken {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	claims := Claims{Sub: "user-2", CompanyID: "company-2", Exp: time.Now().Add(time.Hour).Unix()}
	token := signRS256ForTest(t, claims, key)

	got, err := VerifyRS256(token, &key.PublicKey)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Sub != claims.Sub {
		t.Fatalf("got sub %q", got.Sub)
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := VerifyRS256(token, &other.PublicKey); err != ErrInvalidToken {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestParseHeader(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "u", Exp: time.Now().Add(time.Hour).Unix()}, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	header, err := ParseHeader(token)
	if err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if header.Alg != "HS256" || header.Typ != "JWT" {
		t.Fatalf("unexpected header: %+v", header)
	}

	if _, err := ParseHeader("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func signRS256ForTest(t *testing.T, claims Claims, key *rsa.PrivateKey) string {
	t.Helper()
	headerJSON, _ := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	payloadJSON, _ := json.Marshal(claims)
	unsigned := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	hash := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		t.Fatalf("sign rs256: %v", err)
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig)
}
