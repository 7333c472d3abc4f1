package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"SMTS-backend/internal/platform/db"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	ListByRole(ctx context.Context, role Role) ([]User, error)
	Create(ctx context.Context, u *User) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) UserStore {
	return &Store{db: conn}
}

const selectUser = `SELECT id, username, email, role, password_hash, created_at FROM users`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	r, ok := ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("user %d has unknown role %q", u.ID, role)
	}
	u.Role = r
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// 見つからなければ nil, nil
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE email = ? LIMIT 1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *Store) ListByRole(ctx context.Context, role Role) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+` WHERE role = ? ORDER BY username`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, u *User) (int64, error) {
	const q = `
INSERT INTO users (username, email, role, password_hash, created_at)
VALUES (?, ?, ?, ?, ?)
`
	res, err := s.db.ExecContext(ctx, q, u.Username, u.Email, string(u.Role), u.PasswordHash, u.CreatedAt)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return res.LastInsertId()
}
