package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, subject string, exp *time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject}
	if exp != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*exp)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestFromToken_ExtractsSubject(t *testing.T) {
	tok := signedToken(t, "doctor-42", nil)

	s, err := FromToken(tok)
	if err != nil {
		t.Fatalf("FromToken() error: %v", err)
	}
	if s.UserID != "doctor-42" {
		t.Fatalf("expected UserID 'doctor-42', got %q", s.UserID)
	}
	if s.Expired(time.Now()) {
		t.Fatal("session without exp claim must never expire")
	}
}

func TestFromToken_Expiry(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	s, err := FromToken(signedToken(t, "doctor-42", &past))
	if err != nil {
		t.Fatalf("FromToken() error: %v", err)
	}
	if !s.Expired(time.Now()) {
		t.Fatal("expected session with past exp to be expired")
	}

	future := time.Now().Add(time.Hour)
	s, err = FromToken(signedToken(t, "doctor-42", &future))
	if err != nil {
		t.Fatalf("FromToken() error: %v", err)
	}
	if s.Expired(time.Now()) {
		t.Fatal("expected session with future exp to not be expired")
	}
}

func TestFromToken_RejectsGarbage(t *testing.T) {
	if _, err := FromToken("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestFromToken_RejectsMissingSubject(t *testing.T) {
	if _, err := FromToken(signedToken(t, "", nil)); err == nil {
		t.Fatal("expected error for token without subject")
	}
}

func TestProfileImagePath(t *testing.T) {
	s := New("u1", "tok")
	if s.ProfileImagePath() != "" {
		t.Fatal("expected empty profile image path initially")
	}
	s.SetProfileImagePath("/files/u1.png")
	if got := s.ProfileImagePath(); got != "/files/u1.png" {
		t.Fatalf("expected cached path, got %q", got)
	}
}
