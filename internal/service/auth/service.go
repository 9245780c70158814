package auth

import (
	"context"

	"github.com/careclinic/scheduler-api/internal/model"
	"github.com/careclinic/scheduler-api/internal/repository"
	"github.com/careclinic/scheduler-api/pkg/auth"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
	"github.com/careclinic/scheduler-api/pkg/security"
)

type Service struct {
	users     repository.UserRepository
	passwords security.PasswordVerifier
	tokens    *auth.TokenManager
}

func NewService(users repository.UserRepository, passwords security.PasswordVerifier, tokens *auth.TokenManager) *Service {
	return &Service{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
	}
}

// Login verifies credentials and issues a token carrying the caller's
// identity context.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (string, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if apperrors.IsNotFound(err) {
		return "", apperrors.NewAuthorization("invalid credentials")
	}
	if err != nil {
		return "", err
	}

	if err := s.passwords.Compare(user.PasswordHash, req.Password); err != nil {
		return "", apperrors.NewAuthorization("invalid credentials")
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return "", apperrors.NewTransient("failed to issue token", err)
	}
	return token, nil
}

// ValidateToken resolves a bearer token into identity claims.
func (s *Service) ValidateToken(_ context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperrors.NewAuthorization("invalid token")
	}
	return claims, nil
}
