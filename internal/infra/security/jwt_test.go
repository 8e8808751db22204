package security

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	manager, err := NewJWTManager("test-signing-secret", "auth-test", time.Minute)
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	return manager
}

func TestJWTManagerIssueAndParse(t *testing.T) {
	manager := newTestManager(t)

	signed, err := manager.Issue("user-1", "garage_pilot")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := manager.Parse(signed)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected user id user-1, got %s", claims.UserID)
	}
	if claims.Username != "garage_pilot" {
		t.Fatalf("expected username garage_pilot, got %s", claims.Username)
	}
	if claims.Issuer != "auth-test" {
		t.Fatalf("expected issuer auth-test, got %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti claim")
	}
}

func TestJWTManagerRequiresSecret(t *testing.T) {
	if _, err := NewJWTManager("  ", "auth-test", time.Minute); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestJWTManagerIssueRequiresUserID(t *testing.T) {
	manager := newTestManager(t)
	if _, err := manager.Issue("", "garage_pilot"); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestJWTManagerParseExpiredToken(t *testing.T) {
	manager := newTestManager(t)

	issuedAt := time.Now().Add(-time.Hour)
	manager.WithClock(func() time.Time { return issuedAt })
	signed, err := manager.Issue("user-1", "garage_pilot")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	manager.WithClock(func() time.Time { return time.Now() })
	if _, err := manager.Parse(signed); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTManagerParseRejectsForeignSignature(t *testing.T) {
	manager := newTestManager(t)

	other, err := NewJWTManager("completely-different-secret", "auth-test", time.Minute)
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	signed, err := other.Issue("user-1", "garage_pilot")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := manager.Parse(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestJWTManagerParseRejectsWrongIssuer(t *testing.T) {
	manager := newTestManager(t)

	other, err := NewJWTManager("test-signing-secret", "another-service", time.Minute)
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	signed, err := other.Issue("user-1", "garage_pilot")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := manager.Parse(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for foreign issuer, got %v", err)
	}
}

func TestJWTManagerParseRejectsGarbage(t *testing.T) {
	manager := newTestManager(t)

	cases := []string{"", "   ", "not-a-token", "aaaa.bbbb.cccc"}
	for _, token := range cases {
		if _, err := manager.Parse(token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", token, err)
		}
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc123", "abc123", true},
		{"bearer abc123", "abc123", true},
		{"BEARER abc123", "abc123", true},
		{"  Bearer   abc123  ", "abc123", true},
		{"", "", false},
		{"abc123", "", false},
		{"Basic abc123", "", false},
		{"Bearer ", "", false},
		{"Bearer", "", false},
	}

	for _, tc := range cases {
		token, ok := ExtractBearerToken(tc.header)
		if ok != tc.ok {
			t.Fatalf("ExtractBearerToken(%q) ok = %v, want %v", tc.header, ok, tc.ok)
		}
		if token != tc.token {
			t.Fatalf("ExtractBearerToken(%q) token = %q, want %q", tc.header, token, tc.token)
		}
	}
}
