package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := NewSessionToken("secret", "issuer", 24*time.Hour, SessionClaims{
		StudentID: "student-1",
		Codigo:    "A1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseSessionToken("secret", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.StudentID != "student-1" || claims.Codigo != "A1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatalf("expected issued-at and expires-at to be set")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 24*time.Hour {
		t.Fatalf("expected 24h validity window, got %s", got)
	}
}

func TestSessionTokenExpired(t *testing.T) {
	token, err := NewSessionToken("secret", "issuer", -time.Millisecond, SessionClaims{
		StudentID: "student-1",
		Codigo:    "A1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if _, err := ParseSessionToken("secret", token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionTokenWrongSecret(t *testing.T) {
	token, err := NewSessionToken("secret", "issuer", time.Minute, SessionClaims{
		StudentID: "student-1",
		Codigo:    "A1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if _, err := ParseSessionToken("other-secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSessionTokenTampered(t *testing.T) {
	token, err := NewSessionToken("secret", "issuer", time.Minute, SessionClaims{
		StudentID: "student-1",
		Codigo:    "A1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	if _, err := ParseSessionToken("secret", tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSessionTokenGarbage(t *testing.T) {
	for _, raw := range []string{"", "not-a-token", "a.b.c", "Zm9vYmFy"} {
		if _, err := ParseSessionToken("secret", raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", raw, err)
		}
	}
}
