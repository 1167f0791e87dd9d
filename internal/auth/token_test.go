package auth

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	v := NewVerifier("test-secret")
	token, err := v.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("user id = %q, want user-1", userID)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	t.Parallel()

	v := NewVerifier("test-secret")

	if _, err := v.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty token err = %v, want ErrInvalidToken", err)
	}
	if _, err := v.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token err = %v, want ErrInvalidToken", err)
	}

	other := NewVerifier("other-secret")
	token, err := other.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong-key token err = %v, want ErrInvalidToken", err)
	}

	expired, err := v.Issue("user-1", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := v.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token err = %v, want ErrInvalidToken", err)
	}
}
