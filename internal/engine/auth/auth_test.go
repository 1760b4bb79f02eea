package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	svc := Service{Secret: "s3cret", TTL: time.Hour}
	tok, err := svc.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sub, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub != "user-1" {
		t.Fatalf("subject = %s", sub)
	}
	if err := svc.VerifyFor(tok, "user-1"); err != nil {
		t.Fatalf("verify for: %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	svc := Service{Secret: "s3cret", TTL: time.Hour}
	tok, err := svc.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := (Service{Secret: "other"}).Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}
	if err := svc.VerifyFor(tok, "user-2"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := svc.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := Service{Secret: "s3cret", TTL: time.Minute, Now: func() time.Time { return issued }}
	tok, err := svc.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	later := Service{Secret: "s3cret", Now: func() time.Time { return issued.Add(time.Hour) }}
	if _, err := later.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}
