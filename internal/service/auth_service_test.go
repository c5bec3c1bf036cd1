package service

import (
	"errors"
	"testing"
	"time"
)

func TestAuthServiceTokens(t *testing.T) {
	auth := NewAuthService("s3cret")

	tok, err := auth.IssueStudentToken(42, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := auth.ValidateToken(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 42 || claims.TokenType != TokenTypeStudent || claims.Subject != "42" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	expired, _ := auth.IssueStudentToken(42, -time.Minute)
	if _, err := auth.ValidateToken(expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := NewAuthService("other").ValidateToken(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := auth.ValidateToken("garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}
