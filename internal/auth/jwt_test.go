package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

const testSecret = "test-secret-at-least-32-chars-long-for-security"

func TestJWTManager_GenerateAndValidate_Success(t *testing.T) {
	manager := NewJWTManager(testSecret, "apulibrary-test", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateToken(userID)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	validatedID, err := manager.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if validatedID != userID {
		t.Errorf("expected userID %s, got %s", userID, validatedID)
	}
}

func TestJWTManager_ValidateToken_Expired(t *testing.T) {
	manager := NewJWTManager(testSecret, "apulibrary-test", -1*time.Hour)

	token, err := manager.GenerateToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := manager.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestJWTManager_ValidateToken_WrongSecret(t *testing.T) {
	manager := NewJWTManager(testSecret, "apulibrary-test", 15*time.Minute)
	other := NewJWTManager("another-secret-that-is-also-32-chars-long!", "apulibrary-test", 15*time.Minute)

	token, err := manager.GenerateToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := other.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("expected error for token signed with a different secret")
	}
}

func TestJWTManager_ValidateToken_WrongIssuer(t *testing.T) {
	manager := NewJWTManager(testSecret, "someone-else", 15*time.Minute)
	validator := NewJWTManager(testSecret, "apulibrary-test", 15*time.Minute)

	token, err := manager.GenerateToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := validator.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("expected error for wrong issuer")
	}
}

func TestJWTManager_ValidateToken_Garbage(t *testing.T) {
	manager := NewJWTManager(testSecret, "apulibrary-test", 15*time.Minute)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := manager.ValidateToken(context.Background(), tok); err == nil {
			t.Errorf("expected error for token %q", tok)
		}
	}
}
