package service

import (
	"errors"
	"testing"
	"time"
)

func TestDownloadTokenRoundTrip(t *testing.T) {
	svc := NewDownloadTokenService("test-secret-0123456789abcdef0123456789", 10*time.Minute)

	token, err := svc.Issue(42)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	batchID, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if batchID != 42 {
		t.Fatalf("expected batch 42, got %d", batchID)
	}
}

func TestDownloadTokenExpired(t *testing.T) {
	svc := NewDownloadTokenService("test-secret-0123456789abcdef0123456789", 10*time.Minute)
	expired := &DownloadTokenService{secret: svc.secret, expire: -time.Minute}
	token, err := expired.Issue(7)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := svc.Validate(token); !errors.Is(err, ErrDownloadTokenInvalid) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestDownloadTokenWrongSecret(t *testing.T) {
	issuer := NewDownloadTokenService("issuer-secret-0123456789abcdef01234", 10*time.Minute)
	verifier := NewDownloadTokenService("other-secret-0123456789abcdef012345", 10*time.Minute)

	token, err := issuer.Issue(9)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := verifier.Validate(token); !errors.Is(err, ErrDownloadTokenInvalid) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestDownloadTokenGarbage(t *testing.T) {
	svc := NewDownloadTokenService("test-secret-0123456789abcdef0123456789", time.Minute)
	if _, err := svc.Validate("not-a-jwt"); !errors.Is(err, ErrDownloadTokenInvalid) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}
