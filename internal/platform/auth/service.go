package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"SMTS-backend/internal/platform/db"
)

var (
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("authentication failed")
	ErrInvalidInput       = errors.New("invalid input")
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (string, *User, error)
	Register(ctx context.Context, username, email, password string, role Role) (int64, error)
	Verifiers(ctx context.Context) ([]User, error)
}

type Service struct {
	store  UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

func NewService(conn *db.DB, secret []byte, ttl time.Duration) *Service {
	return &Service{
		store:  NewStore(conn.DB),
		secret: secret,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Secret() []byte { return s.secret }

func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	u, err := s.store.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", nil, err
	}
	if u == nil || u.PasswordHash == "" {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := SignToken(s.secret, *u, s.now(), s.ttl)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, u, nil
}

func (s *Service) Register(ctx context.Context, username, email, password string, role Role) (int64, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" {
		return 0, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return 0, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if _, ok := ParseRole(string(role)); !ok {
		return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return 0, err
	}

	return s.store.Create(ctx, &User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now().Truncate(time.Second),
	})
}

// Verifiers は検証担当（Technician）の一覧
func (s *Service) Verifiers(ctx context.Context) ([]User, error) {
	return s.store.ListByRole(ctx, RoleTechnician)
}

// EmailsByRole は通知の宛先解決に使う
func (s *Service) EmailsByRole(ctx context.Context, role Role) ([]string, error) {
	users, err := s.store.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			out = append(out, u.Email)
		}
	}
	return out, nil
}
