package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"relive.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service owns the credential lifecycle: issuance at register/login,
// stateless access-token verification, single-use refresh rotation and
// best-effort revocation.
type Service struct {
	store Store
	now   func() time.Time

	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the token service. Access and refresh tokens are
// signed with separate secrets so one kind can never stand in for the other.
func NewService(store Store, accessSecret, refreshSecret string, opts ...ServiceOption) (*Service, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: both access and refresh secrets are required")
	}
	svc := &Service{
		store:         store,
		now:           time.Now,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an account and issues its first credential pair.
func (s *Service) Register(ctx context.Context, name, email, password string, role Role) (*User, TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrInvalidInput
	}
	if _, err := s.store.Users(ctx).FindByEmail(ctx, email); err == nil {
		return nil, TokenPair{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, TokenPair{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	user := &User{
		ID:           ids.New(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}

	pair, err := s.mintPair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Login authenticates credentials and issues a fresh pair.
func (s *Service) Login(ctx context.Context, email, password string) (*User, TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.mintPair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Rotate consumes a refresh token and issues a new credential pair. The
// consumed record is deleted and exactly one new record is written; reuse of
// the consumed token fails with ErrNotFound.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := parseToken(s.refreshSecret, refreshToken, s.now())
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}

	tokens := s.store.RefreshTokens(ctx)
	records, err := tokens.ByUser(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, err
	}
	match := findMatch(records, refreshToken)
	if match == nil {
		// Already consumed, forged, or belonging to another subject.
		return TokenPair{}, ErrNotFound
	}

	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}

	if err := tokens.Delete(ctx, match.ID); err != nil {
		return TokenPair{}, err
	}
	return s.mintPair(ctx, user)
}

// Revoke deletes the record matching the presented refresh token, if any.
// A miss is not reported: the caller cannot probe which tokens exist.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	tokens := s.store.RefreshTokens(ctx)
	records, err := tokens.All(ctx)
	if err != nil {
		return err
	}
	if match := findMatch(records, refreshToken); match != nil {
		return tokens.Delete(ctx, match.ID)
	}
	return nil
}

// User fetches an account by id.
func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, id)
}

// Authenticate verifies an access token without touching the store.
func (s *Service) Authenticate(token string) (Principal, error) {
	claims, err := parseToken(s.accessSecret, token, s.now())
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

func (s *Service) mintPair(ctx context.Context, user *User) (TokenPair, error) {
	now := s.now().UTC()
	access, err := signToken(s.accessSecret, user.ID, user.Role, "", s.accessTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := signToken(s.refreshSecret, user.ID, user.Role, uuid.NewString(), s.refreshTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	hash, err := hashRefreshToken(refresh)
	if err != nil {
		return TokenPair{}, err
	}
	rec := &RefreshToken{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: hash,
		IssuedAt:  now,
		// ExpiresAt is intentionally left zero: only the signed token's own
		// expiry claim is enforced.
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func findMatch(records []*RefreshToken, token string) *RefreshToken {
	for _, rec := range records {
		if compareRefreshToken(rec.TokenHash, token) {
			return rec
		}
	}
	return nil
}

// hashRefreshToken stores a salted bcrypt hash of the token digest. The
// pre-hash keeps the input inside bcrypt's length limit; bcrypt supplies the
// per-record salt and a constant-time comparison.
func hashRefreshToken(token string) (string, error) {
	sum := sha256.Sum256([]byte(token))
	hash, err := bcrypt.GenerateFromPassword(sum[:], bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash refresh token: %w", err)
	}
	return string(hash), nil
}

func compareRefreshToken(hash, token string) bool {
	sum := sha256.Sum256([]byte(token))
	return bcrypt.CompareHashAndPassword([]byte(hash), sum[:]) == nil
}
