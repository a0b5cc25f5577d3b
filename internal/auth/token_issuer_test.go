package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer(t *testing.T, clock func() time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        DefaultIssuer,
		Audience:      DefaultAudience,
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func TestTokenIssuerIssuesSessionTokens(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	tokenString, expiresIn, err := issuer.IssueSessionToken(context.Background(), Principal{
		AccountID: "account-123",
		Email:     "owner@example.com",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", expiresIn)
	}

	claims := &SessionClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != "account-123" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.SessionID != "session-1" || claims.Email != "owner@example.com" {
		t.Fatalf("unexpected session claims %#v", claims)
	}
	if claims.Issuer != DefaultIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != DefaultAudience {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTokenIssuerRejectsMissingSecret(t *testing.T) {
	_, err := NewTokenIssuer(TokenIssuerConfig{
		Issuer:   DefaultIssuer,
		Audience: DefaultAudience,
	})
	if err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
}

func TestNewTokenIssuerRequiresIssuerAndAudience(t *testing.T) {
	_, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Audience:      DefaultAudience,
	})
	if err == nil {
		t.Fatalf("expected error for missing issuer")
	}

	_, err = NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        DefaultIssuer,
		Audience:      " ",
	})
	if err == nil {
		t.Fatalf("expected error for missing audience")
	}
}

func TestNewTokenIssuerRejectsNegativeTTL(t *testing.T) {
	_, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        DefaultIssuer,
		Audience:      DefaultAudience,
		TokenTTL:      -time.Minute,
	})
	if err == nil {
		t.Fatalf("expected error for negative ttl")
	}
}

func TestTokenIssuerValidatesIssuedTokens(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	tokenString, _, err := issuer.IssueSessionToken(context.Background(), Principal{
		AccountID: "account-321",
		Email:     "owner@example.com",
		SessionID: "session-9",
	})
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	claims, err := issuer.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	principal := claims.Principal()
	if principal.AccountID != "account-321" || principal.SessionID != "session-9" {
		t.Fatalf("unexpected principal %#v", principal)
	}

	if _, err := issuer.ValidateToken("invalid.token"); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if _, err := issuer.ValidateToken("   "); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	issuedAt := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	now := issuedAt
	issuer := newTestIssuer(t, func() time.Time { return now })

	tokenString, _, err := issuer.IssueSessionToken(context.Background(), Principal{
		AccountID: "account-1",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	now = issuedAt.Add(time.Hour)
	_, err = issuer.ValidateToken(tokenString)
	if !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected jwt expiry to be preserved, got %v", err)
	}
}

func TestTokenIssuerRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		SessionID: "session-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-1",
			Issuer:    DefaultIssuer,
			Audience:  []string{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := forged.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := issuer.ValidateToken(signed); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestIssueSessionTokenRequiresSession(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	_, _, err := issuer.IssueSessionToken(context.Background(), Principal{AccountID: "account-1"})
	if !errors.Is(err, ErrMissingSessionSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}
