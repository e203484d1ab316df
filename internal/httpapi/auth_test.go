package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
)

func TestFirstRegisteredUserBecomesAdmin(t *testing.T) {
	env := newTestAPI(t, Options{})

	rec, body := env.do(t, http.MethodPost, "/api/auth/register", "", domain.RegisterRequest{
		Username: "founder",
		Email:    "Founder@Bazar.test",
		Password: "founder123",
		Role:     domain.RoleViewer,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var user domain.UserView
	decodeData(t, body, &user)
	if user.Role != domain.RoleAdmin {
		t.Fatalf("expected first user to be admin, got %q", user.Role)
	}
	if user.Email != "founder@bazar.test" {
		t.Fatalf("expected lower-cased email, got %q", user.Email)
	}
	if strings.Contains(rec.Body.String(), "$2a$") {
		t.Fatalf("password hash leaked in response: %s", rec.Body.String())
	}

	rec, _ = env.do(t, http.MethodPost, "/api/auth/register", "", domain.RegisterRequest{
		Username: "intruder",
		Email:    "intruder@bazar.test",
		Password: "intruder123",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous second registration: expected 401, got %d", rec.Code)
	}
}

func TestAdminRegistersEmployeeByDefault(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	rec, body := env.do(t, http.MethodPost, "/api/auth/register", token, domain.RegisterRequest{
		Username: "cajero_1",
		Email:    "cajero@bazar.test",
		Password: "cajero123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var user domain.UserView
	decodeData(t, body, &user)
	if user.Role != domain.RoleEmployee {
		t.Fatalf("expected employee role, got %q", user.Role)
	}

	employeeToken := env.login(t, "cajero_1", "cajero123")
	rec, _ = env.do(t, http.MethodPost, "/api/auth/register", employeeToken, domain.RegisterRequest{
		Username: "otro",
		Email:    "otro@bazar.test",
		Password: "otro1234",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("employee registering users: expected 403, got %d", rec.Code)
	}
}

func TestLoginLocksAccountAfterRepeatedFailures(t *testing.T) {
	env := newTestAPI(t, Options{})
	env.addUser(t, "maria", "correcta123", domain.RoleEmployee)

	for i := 1; i <= 5; i++ {
		rec, _ := env.do(t, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "maria", Password: "mala"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}

	rec, body := env.do(t, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "maria", Password: "correcta123"})
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423 once locked, got %d", rec.Code)
	}
	if !strings.HasPrefix(body.Message, ErrAccountLocked.Error()) {
		t.Fatalf("unexpected message %q", body.Message)
	}

	user, err := env.repo.GetUserByLogin(context.Background(), "maria")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.LoginAttempts != 5 || user.LockUntil == nil {
		t.Fatalf("expected 5 attempts and a lock, got %d %v", user.LoginAttempts, user.LockUntil)
	}
}

func TestReactivationClearsLock(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)
	target := env.addUser(t, "pedro", "pedro1234", domain.RoleEmployee)

	lockUntil := time.Now().UTC().Add(time.Hour)
	target.LoginAttempts = 5
	target.LockUntil = &lockUntil
	target.Status = domain.StatusInactive
	if _, err := env.repo.UpdateUser(context.Background(), target); err != nil {
		t.Fatalf("update user: %v", err)
	}

	rec, _ := env.do(t, http.MethodPut, "/api/users/"+target.ID+"/status", token, domain.UserStatusUpdateRequest{Status: domain.StatusActive})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env.login(t, "pedro", "pedro1234")
}

func TestUsersCannotChangeTheirOwnRole(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)
	admin, err := env.repo.GetUserByLogin(context.Background(), "admin")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}

	rec, _ := env.do(t, http.MethodPut, "/api/users/"+admin.ID+"/role", token, domain.RoleUpdateRequest{Role: domain.RoleViewer})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newTestAPI(t, Options{})
	env.addUser(t, "admin", "admin123", domain.RoleAdmin)

	env.auth.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }
	token := env.login(t, "admin", "admin123")
	env.auth.now = func() time.Time { return time.Now().UTC() }

	rec, body := env.do(t, http.MethodGet, "/api/auth/profile", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body.Message != ErrTokenExpired.Error() {
		t.Fatalf("expected %q, got %q", ErrTokenExpired.Error(), body.Message)
	}
}

func TestParseTokenRejectsForeignSignatures(t *testing.T) {
	env := newTestAPI(t, Options{})

	claims := bazarClaims{RegisteredClaims: jwtlib.RegisteredClaims{
		Subject:   "u1",
		Issuer:    tokenIssuer,
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	forged, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("another-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := env.auth.ParseToken(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := env.auth.ParseToken(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg none to be rejected, got %v", err)
	}
}

func TestChangePasswordChecksCurrentPassword(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	rec, body := env.do(t, http.MethodPut, "/api/auth/change-password", token, domain.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "nueva1234",
	})
	if rec.Code != http.StatusBadRequest || len(body.Errors) != 1 {
		t.Fatalf("expected 400 with one field error, got %d %v", rec.Code, body.Errors)
	}

	rec, _ = env.do(t, http.MethodPut, "/api/auth/change-password", token, domain.ChangePasswordRequest{
		CurrentPassword: "admin123",
		NewPassword:     "nueva1234",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env.login(t, "admin", "nueva1234")
}

func TestVerifyPasswordRejectsPlaintext(t *testing.T) {
	if verifyPassword("admin123", "admin123") {
		t.Fatalf("plaintext stored password must never verify")
	}
	hash, err := hashPassword("admin123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !verifyPassword(hash, "admin123") || verifyPassword(hash, "other") {
		t.Fatalf("bcrypt verification mismatch")
	}
}

func TestLoginUnknownUserIsInvalidCredentials(t *testing.T) {
	env := newTestAPI(t, Options{})
	_, err := env.auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "whatever"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.repo.GetUserByLogin(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no user to be created, got %v", err)
	}
}
