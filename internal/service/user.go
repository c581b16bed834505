package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/eventtix/eventtix/internal/auth"
	"github.com/eventtix/eventtix/internal/model"
	"github.com/eventtix/eventtix/internal/repository"
)

// ErrInvalidCredentials is returned for a login with an unknown email or
// a wrong password. The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserService handles account registration and login.
type UserService struct {
	store  repository.Store
	tokens *auth.Manager
}

// NewUserService constructs a UserService.
func NewUserService(store repository.Store, tokens *auth.Manager) *UserService {
	return &UserService{store: store, tokens: tokens}
}

// Register creates an account with a bcrypt-hashed password and returns a
// signed token for it.
func (s *UserService) Register(ctx context.Context, req model.RegisterRequest) (string, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" {
		return "", invalidf("username is required")
	}
	if req.Email == "" {
		return "", invalidf("email is required")
	}
	if len(req.Password) < 6 {
		return "", invalidf("password must be at least 6 characters long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	user, err := s.store.CreateUser(ctx, &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return "", err
	}
	return s.tokens.Issue(user.ID, user.Username)
}

// Login verifies credentials and returns a signed token.
func (s *UserService) Login(ctx context.Context, req model.LoginRequest) (string, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		return "", invalidf("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(user.ID, user.Username)
}
