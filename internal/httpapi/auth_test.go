package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/store"
)

// stubUserStore serves a fixed set of accounts without a repository.
type stubUserStore struct {
	users map[string]domain.UserAccount
}

func (s *stubUserStore) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func newStubAuth(t *testing.T, users ...domain.UserAccount) *AuthManager {
	t.Helper()
	stub := &stubUserStore{users: map[string]domain.UserAccount{}}
	for _, u := range users {
		stub.users[u.Username] = u
	}
	return NewAuthManager("unit-test-secret-key-not-for-production", time.Hour, stub)
}

func stubUser(t *testing.T, username string, password string, role string, companyID string, active bool) domain.UserAccount {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      role,
		CompanyID: companyID,
		Active:    active,
	}
}

func TestTokenRoundTripKeepsClaims(t *testing.T) {
	auth := newStubAuth(t, stubUser(t, "admin", "adminpass123", domain.RoleCompanyAdmin, "cmp_1", true))

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "adminpass123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !resp.Success || resp.AccessToken == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleCompanyAdmin || actor.CompanyID != "cmp_1" {
		t.Fatalf("claims lost in round trip: %+v", actor)
	}
}

func TestLoginTrimsUsername(t *testing.T) {
	auth := newStubAuth(t, stubUser(t, "root", "rootpass123", domain.RoleSystemAdmin, "", true))

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "  root  ", Password: "rootpass123"}); err != nil {
		t.Fatalf("login with padded username: %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := newStubAuth(t, stubUser(t, "root", "rootpass123", domain.RoleSystemAdmin, "", true))

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "root", Password: "rootpass124"}); err == nil {
		t.Fatalf("wrong password accepted")
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "rootpass123"}); err == nil {
		t.Fatalf("unknown user accepted")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth := newStubAuth(t, stubUser(t, "former", "formerpass123", domain.RoleCompanyAdmin, "cmp_1", false))

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "former", Password: "formerpass123"}); err == nil {
		t.Fatalf("inactive account accepted")
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth := newStubAuth(t, stubUser(t, "root", "rootpass123", domain.RoleSystemAdmin, "", true))
	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "root", Password: "rootpass123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Flip a character in the signature segment.
	parts := strings.Split(resp.AccessToken, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("tampered token accepted")
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	user := stubUser(t, "root", "rootpass123", domain.RoleSystemAdmin, "", true)
	issuer := newStubAuth(t, user)
	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "root", Password: "rootpass123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	verifier := NewAuthManager("a-completely-different-secret-value", time.Hour, &stubUserStore{})
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with another secret accepted")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	user := stubUser(t, "root", "rootpass123", domain.RoleSystemAdmin, "", true)
	auth := newStubAuth(t, user)

	token, err := auth.sign("root", domain.RoleSystemAdmin, "", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expired token accepted")
	}
}
