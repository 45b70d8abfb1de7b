package auth

import (
	"context"
	"database/sql"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, name, email, password_hash, role) values($1,$2,$3,$4,$5)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role),
	)
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, email, password_hash, role, created_at from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, email, password_hash, role, created_at from users where email=$1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

// Refresh token store ------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, issued_at, expires_at)
		 values($1,$2,$3,$4,nullif($5, '0001-01-01T00:00:00Z'::timestamptz))`,
		tok.ID, tok.UserID, tok.TokenHash, tok.IssuedAt, tok.ExpiresAt,
	)
	return err
}

func (s *refreshTokenStore) ByUser(ctx context.Context, userID string) ([]*RefreshToken, error) {
	return s.list(ctx,
		`select id, user_id, token_hash, issued_at, coalesce(expires_at, '0001-01-01T00:00:00Z'::timestamptz)
		 from refresh_tokens where user_id=$1`, userID)
}

func (s *refreshTokenStore) All(ctx context.Context) ([]*RefreshToken, error) {
	return s.list(ctx,
		`select id, user_id, token_hash, issued_at, coalesce(expires_at, '0001-01-01T00:00:00Z'::timestamptz)
		 from refresh_tokens`)
}

func (s *refreshTokenStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_tokens where id=$1`, id)
	return err
}

func (s *refreshTokenStore) list(ctx context.Context, query string, args ...any) ([]*RefreshToken, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*RefreshToken
	for rows.Next() {
		var tok RefreshToken
		if err := rows.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.IssuedAt, &tok.ExpiresAt); err != nil {
			return nil, err
		}
		res = append(res, &tok)
	}
	return res, rows.Err()
}
