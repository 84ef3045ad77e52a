package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/classbook/internal/auth"
	"github.com/Shivanand-hulikatti/classbook/internal/clock"
	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/repository"
)

var (
	// ErrInvalidCredentials hides whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username is already taken")
	// ErrUserNotFound is returned for an unknown account id.
	ErrUserNotFound = errors.New("user not found")
)

const minPasswordLen = 8

// UserService manages accounts and token issuance.
type UserService struct {
	users  repository.UserStore
	issuer *auth.Issuer
	clock  clock.Clock
	log    *slog.Logger
}

func NewUserService(users repository.UserStore, issuer *auth.Issuer, clk clock.Clock, log *slog.Logger) *UserService {
	return &UserService{users: users, issuer: issuer, clock: clk, log: log}
}

// Register creates an account with a bcrypt-hashed password.
func (s *UserService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" {
		return nil, invalid("username is required")
	}
	if !isValidEmail(req.Email) {
		return nil, invalid("email is not a valid email address")
	}
	if len(req.Password) < minPasswordLen {
		return nil, invalid("password must be at least %d characters", minPasswordLen)
	}
	switch req.Role {
	case "":
		req.Role = model.RoleUser
	case model.RoleUser, model.RoleTrainer:
	default:
		return nil, invalid("role must be user or trainer")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Bio:          strings.TrimSpace(req.Bio),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Login checks credentials and issues an access token.
func (s *UserService) Login(ctx context.Context, req model.LoginRequest) (*model.TokenResponse, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	token, exp, err := s.issuer.Issue(*u)
	if err != nil {
		return nil, err
	}
	return &model.TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: exp}, nil
}

// Me returns the account with the given id.
func (s *UserService) Me(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpdateProfile changes the email and bio of account id.
func (s *UserService) UpdateProfile(ctx context.Context, id string, req model.UpdateProfileRequest) (*model.User, error) {
	u, err := s.Me(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if !isValidEmail(email) {
			return nil, invalid("email is not a valid email address")
		}
		u.Email = email
	}
	if req.Bio != nil {
		u.Bio = strings.TrimSpace(*req.Bio)
	}
	if err := s.users.Update(ctx, u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.log.Info("profile updated", "user_id", u.ID)
	return u, nil
}
