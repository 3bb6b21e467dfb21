package auth

import (
	"errors"
	"testing"
	"time"
)

func TestCodec_SignVerifyRoundtrip(t *testing.T) {
	codec := NewCodec("test-secret", KindActivation)

	token, err := codec.Sign(Claims{
		User: &PendingUser{
			Name:      "alice",
			Email:     "alice@example.com",
			Password:  "$2a$10$fakehash",
			AvatarID:  "avatars/abc",
			AvatarURL: "https://assets.example.com/avatars/abc.png",
		},
	}, 5*time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Kind != KindActivation {
		t.Errorf("expected kind %q, got %q", KindActivation, claims.Kind)
	}
	if claims.User == nil || claims.User.Email != "alice@example.com" {
		t.Errorf("pending user mismatch: %+v", claims.User)
	}
}

func TestCodec_Expired(t *testing.T) {
	base := time.Now()
	current := base
	codec := NewCodec("test-secret", KindActivation).WithClock(func() time.Time { return current })

	token, err := codec.Sign(Claims{User: &PendingUser{Email: "alice@example.com"}}, 300*time.Second)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	// 300 秒 TTL，299 秒时仍然有效
	current = base.Add(299 * time.Second)
	if _, err := codec.Verify(token); err != nil {
		t.Fatalf("expected token valid at 299s, got %v", err)
	}

	// 301 秒时过期
	current = base.Add(301 * time.Second)
	if _, err := codec.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestCodec_WrongSecret(t *testing.T) {
	signer := NewCodec("secret-a", KindSession)
	verifier := NewCodec("secret-b", KindSession)

	token, err := signer.Sign(Claims{}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCodec_KindMismatch(t *testing.T) {
	// 即使两类令牌误用同一密钥，kind 标记也会拦下跨流程重放
	secret := "shared-secret"
	session := NewCodec(secret, KindSession)
	activation := NewCodec(secret, KindActivation)

	token, err := session.Sign(Claims{}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := activation.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on kind mismatch, got %v", err)
	}
}

func TestCodec_Tampered(t *testing.T) {
	codec := NewCodec("test-secret", KindSession)
	token, err := codec.Sign(Claims{}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := codec.Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := codec.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
