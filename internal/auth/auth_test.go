package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"agenda.org/internal/roles"
)

func TestGenerateAndValidateToken(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()

	token, err := GenerateToken("user-42", roles.CommunityMember, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Role != string(roles.CommunityMember) {
		t.Fatalf("unexpected role: %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti claim")
	}
}

func TestGenerateTokenRejectsUnknownRole(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()

	if _, err := GenerateToken("user-42", "superadmin", time.Minute); !errors.Is(err, roles.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestParseAndValidateRejectsGarbage(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()

	for _, token := range []string{"", "   ", "not.a.jwt"} {
		if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseAndValidate(%q): expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestParseAndValidateRejectsExpired(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()

	token, err := GenerateToken("user-42", roles.Admin, time.Nanosecond)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	defer ResetSecretForTests()

	if _, err := GenerateToken("user-42", roles.Admin, time.Minute); err == nil {
		t.Fatal("expected an error without a configured secret")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("empty context must not yield a principal")
	}
	if got := ViewerRole(ctx); got != roles.Unauthenticated {
		t.Fatalf("anonymous viewer role = %s, want unauthenticated", got)
	}

	ctx = ContextWithPrincipal(ctx, Principal{UserID: "user-7", Role: roles.Admin})
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID != "user-7" || p.Role != roles.Admin {
		t.Fatalf("unexpected principal: %+v ok=%v", p, ok)
	}
	if got := ViewerRole(ctx); got != roles.Admin {
		t.Fatalf("viewer role = %s, want admin", got)
	}

	ctx = ContextWithToken(ctx, "raw-token")
	token, ok := TokenFromContext(ctx)
	if !ok || token != "raw-token" {
		t.Fatalf("unexpected token: %q ok=%v", token, ok)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "hunter2"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
