package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"spendtracker/internal/core"
	"spendtracker/internal/storage"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLength = 72
)

type RegisterInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Session is returned by Register and Login.
type Session struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

type Service struct {
	users      storage.UserStore
	tokens     *TokenIssuer
	bcryptCost int
}

// NewService uses bcrypt.DefaultCost when cost is zero.
func NewService(users storage.UserStore, tokens *TokenIssuer, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{users: users, tokens: tokens, bcryptCost: cost}
}

func (in RegisterInput) validate() error {
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return core.Validationf("username, email, and password are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return core.Validationf("invalid email address")
	}
	if len(in.Password) < MinPasswordLength || len(in.Password) > MaxPasswordLength {
		return core.Validationf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := in.validate(); err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("%w: hash password: %w", core.ErrInfrastructure, err)
	}

	u, err := s.users.CreateUser(ctx, core.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	})
	if err != nil {
		return Session{}, fmt.Errorf("register: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", u.ID, "username", u.Username)
	return s.session(u)
}

// Login checks credentials. Unknown users and wrong passwords produce the
// same core.ErrUnauthorized.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	if username == "" || password == "" {
		return Session{}, core.Validationf("username and password are required")
	}

	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: invalid credentials", core.ErrUnauthorized)
	}
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "Failed login attempt", "username", u.Username)
		return Session{}, fmt.Errorf("%w: invalid credentials", core.ErrUnauthorized)
	}

	return s.session(u)
}

func (s *Service) session(u core.User) (Session, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", core.ErrInfrastructure, err)
	}
	return Session{Token: token, User: u}, nil
}
