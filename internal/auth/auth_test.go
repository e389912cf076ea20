package auth

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestPresenceOnlyMode(t *testing.T) {
	service := NewService("")
	if service.Verifying() {
		t.Fatal("Verifying() = true without a secret")
	}

	if _, err := service.Authenticate(""); err != ErrMissingCredential {
		t.Fatalf("Authenticate(\"\") error = %v, want ErrMissingCredential", err)
	}
	if _, err := service.Authenticate("   "); err != ErrMissingCredential {
		t.Fatalf("Authenticate(blank) error = %v, want ErrMissingCredential", err)
	}
	id, err := service.Authenticate("any-opaque-token")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.UserID != "" {
		t.Errorf("presence-only identity carries a user id: %+v", id)
	}
}

func TestVerifyingMode(t *testing.T) {
	service := NewService("secret")
	token, err := service.Generate("user-1", "ada", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	id, err := service.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", id.UserID)
	}
	if id.Username != "ada" {
		t.Errorf("Username = %q, want ada", id.Username)
	}

	if _, err := service.Authenticate("not-a-jwt"); err != ErrInvalidToken {
		t.Errorf("garbage token error = %v, want ErrInvalidToken", err)
	}

	other := NewService("different-secret")
	if _, err := other.Authenticate(token); err != ErrInvalidToken {
		t.Errorf("wrong-secret token error = %v, want ErrInvalidToken", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	service := NewService("secret")
	token, err := service.Generate("user-1", "", -time.Minute)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := service.Authenticate(token); err != ErrInvalidToken {
		t.Fatalf("expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := TokenFromRequest(r); got != "abc123" {
		t.Errorf("header token = %q, want abc123", got)
	}

	r = httptest.NewRequest("GET", "/ws?token=qp456", nil)
	if got := TokenFromRequest(r); got != "qp456" {
		t.Errorf("query token = %q, want qp456", got)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if got := TokenFromRequest(r); got != "" {
		t.Errorf("empty request token = %q, want empty", got)
	}
}
