package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJWTProvider_ResolveRoundTrip(t *testing.T) {
	provider := NewJWTProvider("test-secret")

	token, err := SignToken("test-secret", Identity{
		UserID:      "user-1",
		DisplayName: "Alice",
		IsStaff:     true,
	}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	id, err := provider.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.UserID != "user-1" {
		t.Errorf("expected user-1, got %q", id.UserID)
	}
	if id.DisplayName != "Alice" {
		t.Errorf("expected Alice, got %q", id.DisplayName)
	}
	if !id.IsStaff {
		t.Errorf("expected staff flag to survive the round trip")
	}
}

func TestJWTProvider_WrongSecret(t *testing.T) {
	provider := NewJWTProvider("right-secret")

	token, err := SignToken("wrong-secret", Identity{UserID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := provider.Resolve(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTProvider_Expired(t *testing.T) {
	provider := NewJWTProvider("test-secret")

	token, err := SignToken("test-secret", Identity{UserID: "user-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := provider.Resolve(context.Background(), token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTProvider_MissingSubject(t *testing.T) {
	provider := NewJWTProvider("test-secret")

	token, err := SignToken("test-secret", Identity{DisplayName: "No Subject"}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := provider.Resolve(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for empty subject, got %v", err)
	}
}

func TestJWTProvider_Garbage(t *testing.T) {
	provider := NewJWTProvider("test-secret")
	if _, err := provider.Resolve(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
