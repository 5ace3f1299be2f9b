package auth

import (
	"testing"
	"time"

	"github.com/erazemk/arsenal/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, 1, model.RoleAdmin, 0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("expected userId 1, got %d", claims.UserID)
	}
	if claims.Role != model.RoleAdmin {
		t.Errorf("expected role 'admin', got %q", claims.Role)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}
}

func TestTokensHaveUniqueIDs(t *testing.T) {
	a, _ := GenerateToken("secret", 1, model.RoleAdmin, 0)
	b, _ := GenerateToken("secret", 1, model.RoleAdmin, 0)

	ca, _ := ValidateToken("secret", a)
	cb, _ := ValidateToken("secret", b)
	if ca.ID == cb.ID {
		t.Errorf("expected distinct token ids, both %q", ca.ID)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", 1, model.RoleAdmin, 0)

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	token, _ := GenerateToken("secret", 1, model.RoleAdmin, time.Nanosecond)
	time.Sleep(1100 * time.Millisecond)

	if _, err := ValidateToken("secret", token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"

	for _, ttl := range []time.Duration{0, time.Hour} {
		token, _ := GenerateToken(secret, 1, model.RoleLogisticsOfficer, ttl)
		claims, _ := ValidateToken(secret, token)

		want := ttl
		if want == 0 {
			want = TokenExpiry
		}
		diff := time.Now().Add(want).Sub(claims.ExpiresAt.Time)
		if diff < -5*time.Second || diff > 5*time.Second {
			t.Errorf("ttl %v: token expiry too far from expected: diff=%v", ttl, diff)
		}
	}
}
