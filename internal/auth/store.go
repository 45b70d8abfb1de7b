package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages account rows.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// RefreshTokenStore manages persisted refresh-token hashes.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	// ByUser returns every live record for a user; rotation scans them to
	// find the one whose hash matches the presented token.
	ByUser(ctx context.Context, userID string) ([]*RefreshToken, error)
	// All returns every live record. Revocation scans the full set so that a
	// token can be retired without the caller proving who owns it.
	All(ctx context.Context) ([]*RefreshToken, error)
	Delete(ctx context.Context, id string) error
}
