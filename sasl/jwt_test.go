package sasl

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, claims jwtCredentialClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTCredentialsProvider_PerServicePassword(t *testing.T) {
	claims := jwtCredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ServicePasswords: map[string]string{"kv": "kv-secret", "query": "query-secret"},
	}
	p := NewJWTCredentialsProvider(signTestToken(t, claims))

	creds, err := p.Credentials(context.Background(), "query")
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if creds.Username != "alice" || creds.Password != "query-secret" {
		t.Errorf("Credentials() = %+v, want alice/query-secret", creds)
	}
}

func TestJWTCredentialsProvider_FallsBackToSharedPassword(t *testing.T) {
	claims := jwtCredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"},
		Password:         "shared-secret",
	}
	p := NewJWTCredentialsProvider(signTestToken(t, claims))

	creds, err := p.Credentials(context.Background(), "search")
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if creds.Password != "shared-secret" {
		t.Errorf("Credentials().Password = %q, want shared-secret", creds.Password)
	}
}

func TestJWTCredentialsProvider_NoPasswordForService(t *testing.T) {
	claims := jwtCredentialClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "carol"}}
	p := NewJWTCredentialsProvider(signTestToken(t, claims))

	if _, err := p.Credentials(context.Background(), "kv"); err == nil {
		t.Fatal("Credentials() error = nil, want error for missing password claim")
	}
}

func TestJWTCredentialsProvider_MalformedToken(t *testing.T) {
	p := NewJWTCredentialsProvider("not-a-jwt")
	if _, err := p.Credentials(context.Background(), "kv"); err == nil {
		t.Fatal("Credentials() error = nil, want error for malformed token")
	}
}
