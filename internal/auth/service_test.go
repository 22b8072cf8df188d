package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"barchat/internal/config"
	"barchat/internal/models"
)

func testService(secret string, expiry time.Duration) *Service {
	cfg := &config.Config{}
	cfg.JWT.Secret = secret
	cfg.JWT.ExpiresIn = expiry
	return NewService(nil, cfg)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := testService("test-secret", time.Hour)
	user := &models.User{ID: "u1", Username: "alice", Role: "user"}

	token, err := svc.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("subject = %q, want u1", claims.Subject)
	}
	if claims.Username != "alice" {
		t.Errorf("username = %q, want alice", claims.Username)
	}
	if claims.Role != "user" {
		t.Errorf("role = %q, want user", claims.Role)
	}
}

func TestVerifyTokenFailures(t *testing.T) {
	svc := testService("test-secret", time.Hour)
	user := &models.User{ID: "u1", Username: "alice"}

	expired := testService("test-secret", -time.Hour)
	expiredToken, err := expired.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	otherKey := testService("other-secret", time.Hour)
	foreignToken, err := otherKey.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	noSubject, err := svc.GenerateToken(&models.User{Username: "ghost"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage token", "not.a.token"},
		{"expired token", expiredToken},
		{"wrong key", foreignToken},
		{"missing subject", noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.VerifyToken(tt.token)
			if !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("VerifyToken error = %v, want ErrInvalidCredential", err)
			}
		})
	}
}

func TestVerifyTokenRejectsUnexpectedAlg(t *testing.T) {
	svc := testService("test-secret", time.Hour)

	// alg=none with a valid-looking claim set.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := svc.VerifyToken(signed); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("VerifyToken error = %v, want ErrInvalidCredential", err)
	}
}
