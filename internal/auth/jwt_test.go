package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret")

	token, err := svc.Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("subject = %q, want %q", claims.Subject, "alice")
	}
	if claims.ExpiresAt == nil {
		t.Fatal("token has no expiry")
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 29*time.Minute || ttl > 31*time.Minute {
		t.Errorf("token TTL = %s, want about %s", ttl, TokenTTL)
	}
}

func TestIssueEmptyUserID(t *testing.T) {
	svc := NewTokenService("test-secret")
	if _, err := svc.Issue(""); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("Issue(\"\") error = %v, want ErrEmptyUserID", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := NewTokenServiceWithTTL("test-secret", -time.Minute, 0)
	token, err := svc.Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := svc.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Validate() error = %v, want ErrExpiredToken", err)
	}
}

func TestValidateLeewayToleratesSkew(t *testing.T) {
	// Expired a few seconds ago but inside the leeway window.
	svc := NewTokenServiceWithTTL("test-secret", -5*time.Second, 30*time.Second)
	token, err := svc.Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := svc.Validate(token); err != nil {
		t.Errorf("Validate() inside leeway error = %v", err)
	}
}

func TestValidateWrongSecret(t *testing.T) {
	token, err := NewTokenService("secret-a").Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := NewTokenService("secret-b").Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateGarbage(t *testing.T) {
	svc := NewTokenService("test-secret")
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.Validate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate(%q) error = %v, want ErrInvalidToken", tok, err)
		}
	}
}
