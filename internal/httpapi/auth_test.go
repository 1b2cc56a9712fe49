package httpapi

import (
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"salesms/backend/internal/domain"
)

func TestAuthManagerHashesPlainPassword(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "admin", "s3cret-pass")

	if manager.passwordHash == "s3cret-pass" {
		t.Fatalf("expected password to be stored as hash, got plain-text")
	}
	if !strings.HasPrefix(manager.passwordHash, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", manager.passwordHash)
	}

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin || resp.AccessToken == "" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestAuthManagerAcceptsPreHashedPassword(t *testing.T) {
	hash := mustHashPassword(t, "from-vault")
	manager := NewAuthManager("test-secret", time.Hour, "ops", hash)

	if manager.passwordHash != hash {
		t.Fatalf("expected bcrypt hash to be kept as-is")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "ops", Password: "from-vault"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func TestAuthManagerRejectsBadCredentials(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "admin", "s3cret-pass")

	cases := []domain.LoginRequest{
		{Username: "admin", Password: "wrong"},
		{Username: "root", Password: "s3cret-pass"},
		{Username: "admin", Password: ""},
	}
	for _, req := range cases {
		if _, err := manager.Login(req); err == nil {
			t.Fatalf("expected login %+v to fail", req)
		}
	}
}

func TestAuthManagerWithoutPasswordDisablesLogin(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "admin", "")
	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "anything"}); err == nil {
		t.Fatalf("expected login to be disabled")
	}
}

func TestParseTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "admin", "s3cret-pass")
	other := NewAuthManager("other-secret", time.Hour, "admin", "s3cret-pass")

	resp, err := other.Login(domain.LoginRequest{Username: "admin", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired, err := manager.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, adminClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "admin", Issuer: "salesms"},
		Role:             domain.RoleAdmin,
	})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := manager.ParseToken(unsigned); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}
