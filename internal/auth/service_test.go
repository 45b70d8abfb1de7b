package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

const (
	testAccessSecret  = "access-secret-for-tests-only"
	testRefreshSecret = "refresh-secret-for-tests-only"
)

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(NewMemoryStore(), testAccessSecret, testRefreshSecret, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, "Ada", "ada@example.org", "correct horse", RoleDonor)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == "" || user.Email != "ada@example.org" || user.Role != RoleDonor {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "correct horse" {
		t.Fatal("password stored in clear")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens on registration")
	}

	principal, err := svc.Authenticate(pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.UserID != user.ID || principal.Role != RoleDonor {
		t.Fatalf("unexpected principal: %+v", principal)
	}

	if _, _, err := svc.Register(ctx, "Ada2", "ADA@example.org", "another pass", RoleDonor); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email: got %v, want ErrEmailTaken", err)
	}

	if _, _, err := svc.Login(ctx, "ada@example.org", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad password: got %v, want ErrInvalidCredentials", err)
	}
	loggedIn, loginPair, err := svc.Login(ctx, "Ada@Example.org", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Fatalf("login returned wrong user: %s", loggedIn.ID)
	}
	if loginPair.RefreshToken == pair.RefreshToken {
		t.Fatal("login should mint a fresh refresh token")
	}
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "Ben", "ben@example.org", "hunter2hunter2", RoleVolunteer)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rotated, err := svc.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first rotation: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	// Reuse of the spent token must fail.
	if _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reuse: got %v, want ErrNotFound", err)
	}

	// The replacement works exactly once.
	if _, err := svc.Rotate(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotating replacement: %v", err)
	}
	if _, err := svc.Rotate(ctx, rotated.RefreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replacement reuse: got %v, want ErrNotFound", err)
	}
}

func TestRotateRejectsForeignAndGarbageTokens(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Rotate(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: got %v, want ErrInvalidToken", err)
	}

	// An access token signed with the access secret is not a refresh token.
	_, pair, err := svc.Register(ctx, "Cam", "cam@example.org", "a long password", RoleShelter)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Rotate(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token as refresh: got %v, want ErrInvalidToken", err)
	}
}

func TestRevokeIsBestEffort(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "Dee", "dee@example.org", "a long password", RoleDonor)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rotate after revoke: got %v, want ErrNotFound", err)
	}

	// Revoking again, or revoking junk, still succeeds.
	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if err := svc.Revoke(ctx, "garbage"); err != nil {
		t.Fatalf("Revoke garbage: %v", err)
	}
	if err := svc.Revoke(ctx, ""); err != nil {
		t.Fatalf("Revoke empty: %v", err)
	}
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	clock := time.Now
	svc := newTestService(t, WithAccessTTL(time.Minute), WithClock(func() time.Time { return clock() }))
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "Eli", "eli@example.org", "a long password", RoleDonor)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Authenticate(pair.AccessToken); err != nil {
		t.Fatalf("fresh token: %v", err)
	}

	clock = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := svc.Authenticate(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: got %v, want ErrInvalidToken", err)
	}
}

func TestMultiDeviceRotation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "Fay", "fay@example.org", "a long password", RoleVolunteer); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Second device logs in; both sessions hold distinct refresh tokens.
	_, deviceA, err := svc.Login(ctx, "fay@example.org", "a long password")
	if err != nil {
		t.Fatalf("login device A: %v", err)
	}
	_, deviceB, err := svc.Login(ctx, "fay@example.org", "a long password")
	if err != nil {
		t.Fatalf("login device B: %v", err)
	}

	// Rotating device A leaves device B's token usable.
	if _, err := svc.Rotate(ctx, deviceA.RefreshToken); err != nil {
		t.Fatalf("rotate device A: %v", err)
	}
	if _, err := svc.Rotate(ctx, deviceB.RefreshToken); err != nil {
		t.Fatalf("rotate device B: %v", err)
	}
}
