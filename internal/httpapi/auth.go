package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/logger"
	"bazar/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrAccountLocked      = errors.New("account is locked")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("insufficient permissions")
)

const tokenIssuer = "bazar"

type AuthOptions struct {
	Secret       string
	TokenTTL     time.Duration
	MaxAttempts  int
	LockDuration time.Duration
}

type AuthManager struct {
	secret      []byte
	tokenTTL    time.Duration
	maxAttempts int
	lockFor     time.Duration
	users       store.UserStore
	log         zerolog.Logger
	now         func() time.Time
}

type bazarClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(users store.UserStore, opts AuthOptions) *AuthManager {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 7 * 24 * time.Hour
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.LockDuration <= 0 {
		opts.LockDuration = 2 * time.Hour
	}
	return &AuthManager{
		secret:      []byte(opts.Secret),
		tokenTTL:    opts.TokenTTL,
		maxAttempts: opts.MaxAttempts,
		lockFor:     opts.LockDuration,
		users:       users,
		log:         logger.WithComponent("auth"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Login checks the password, counting failures towards the lockout, and
// issues a token for active accounts.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	if err := domain.Validate(req); err != nil {
		return domain.LoginResponse{}, err
	}
	user, err := a.users.GetUserByLogin(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}

	now := a.now()
	if user.IsLocked(now) {
		return domain.LoginResponse{}, fmt.Errorf("%w until %s", ErrAccountLocked, user.LockUntil.Format(time.RFC3339))
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		updated, err := a.users.RecordLoginFailure(ctx, user.ID, a.maxAttempts, a.lockFor, now)
		if err != nil {
			return domain.LoginResponse{}, err
		}
		if updated.IsLocked(now) {
			a.log.Warn().Str("username", user.Username).Time("lock_until", *updated.LockUntil).Msg("account locked after failed logins")
		}
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if user.Status != domain.StatusActive {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	if err := a.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return domain.LoginResponse{}, err
	}
	user.RegisterSuccessfulLogin(now)

	expiresAt := now.Add(a.tokenTTL)
	token, err := a.sign(*user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	a.log.Info().Str("username", user.Username).Msg("login succeeded")
	return domain.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		User:      domain.ViewOf(*user),
	}, nil
}

// Register creates a user. The very first account is always an admin;
// later ones need an actor holding users:write.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest, actor *domain.Actor) (domain.UserView, error) {
	if err := domain.Validate(req); err != nil {
		return domain.UserView{}, err
	}
	count, err := a.users.CountUsers(ctx)
	if err != nil {
		return domain.UserView{}, err
	}

	role := req.Role
	switch {
	case count == 0:
		role = domain.RoleAdmin
	case actor == nil:
		return domain.UserView{}, ErrUnauthorized
	case !actor.Can(domain.PermUsersWrite):
		return domain.UserView{}, ErrForbidden
	case role == "":
		role = domain.RoleEmployee
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserView{}, err
	}
	now := a.now()
	created, err := a.users.CreateUser(ctx, domain.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Profile:      req.Profile,
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.UserView{}, err
	}
	a.log.Info().Str("username", created.Username).Str("role", created.Role).Msg("user registered")
	return domain.ViewOf(*created), nil
}

// Authenticate resolves a bearer token to the current state of its user.
func (a *AuthManager) Authenticate(ctx context.Context, token string) (domain.User, error) {
	userID, err := a.ParseToken(token)
	if err != nil {
		return domain.User{}, err
	}
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidToken
		}
		return domain.User{}, err
	}
	if user.Status != domain.StatusActive {
		return domain.User{}, ErrInactiveAccount
	}
	if user.IsLocked(a.now()) {
		return domain.User{}, ErrAccountLocked
	}
	return *user, nil
}

// ParseToken validates signature, algorithm and expiry and returns the
// subject user id.
func (a *AuthManager) ParseToken(tokenStr string) (string, error) {
	claims := &bazarClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

func (a *AuthManager) sign(user domain.User, expiresAt time.Time) (string, error) {
	claims := bazarClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: user.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) Profile(ctx context.Context, userID string) (domain.UserView, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.UserView{}, err
	}
	return domain.ViewOf(*user), nil
}

func (a *AuthManager) UpdateProfile(ctx context.Context, userID string, req domain.ProfileUpdateRequest) (domain.UserView, error) {
	if err := domain.Validate(req); err != nil {
		return domain.UserView{}, err
	}
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.UserView{}, err
	}
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Profile != nil {
		if err := domain.Validate(*req.Profile); err != nil {
			return domain.UserView{}, err
		}
		user.Profile = *req.Profile
	}
	user.UpdatedAt = a.now()
	saved, err := a.users.UpdateUser(ctx, *user)
	if err != nil {
		return domain.UserView{}, err
	}
	return domain.ViewOf(*saved), nil
}

func (a *AuthManager) ChangePassword(ctx context.Context, userID string, req domain.ChangePasswordRequest) error {
	if err := domain.Validate(req); err != nil {
		return err
	}
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !verifyPassword(user.PasswordHash, req.CurrentPassword) {
		return &domain.ValidationError{Fields: []string{"currentPassword is incorrect"}}
	}
	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = a.now()
	if _, err := a.users.UpdateUser(ctx, *user); err != nil {
		return err
	}
	a.log.Info().Str("username", user.Username).Msg("password changed")
	return nil
}

func (a *AuthManager) ListUsers(ctx context.Context, filter store.ListFilter) (store.Page[domain.UserView], error) {
	page, err := a.users.ListUsers(ctx, filter)
	if err != nil {
		return store.Page[domain.UserView]{}, err
	}
	views := make([]domain.UserView, 0, len(page.Items))
	for _, user := range page.Items {
		views = append(views, domain.ViewOf(user))
	}
	return store.Page[domain.UserView]{Items: views, Total: page.Total}, nil
}

func (a *AuthManager) UpdateRole(ctx context.Context, actor domain.Actor, userID string, req domain.RoleUpdateRequest) (domain.UserView, error) {
	if err := domain.Validate(req); err != nil {
		return domain.UserView{}, err
	}
	if actor.UserID == userID {
		return domain.UserView{}, fmt.Errorf("%w: you cannot change your own role", ErrForbidden)
	}
	return a.mutateUser(ctx, userID, func(user *domain.User) {
		user.Role = req.Role
	})
}

// UpdateStatus activates or deactivates an account. Reactivating also clears
// any lockout.
func (a *AuthManager) UpdateStatus(ctx context.Context, actor domain.Actor, userID string, req domain.UserStatusUpdateRequest) (domain.UserView, error) {
	if err := domain.Validate(req); err != nil {
		return domain.UserView{}, err
	}
	if actor.UserID == userID {
		return domain.UserView{}, fmt.Errorf("%w: you cannot change your own status", ErrForbidden)
	}
	return a.mutateUser(ctx, userID, func(user *domain.User) {
		user.Status = req.Status
		if req.Status == domain.StatusActive {
			user.LoginAttempts = 0
			user.LockUntil = nil
		}
	})
}

func (a *AuthManager) mutateUser(ctx context.Context, userID string, apply func(*domain.User)) (domain.UserView, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.UserView{}, err
	}
	apply(user)
	user.UpdatedAt = a.now()
	saved, err := a.users.UpdateUser(ctx, *user)
	if err != nil {
		return domain.UserView{}, err
	}
	a.log.Info().Str("username", saved.Username).Str("role", saved.Role).Str("status", saved.Status).Msg("user updated")
	return domain.ViewOf(*saved), nil
}

func actorFor(user domain.User) domain.Actor {
	return domain.Actor{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		Permissions: domain.PermissionsForRole(user.Role),
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
