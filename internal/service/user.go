package service

import (
	"context"
	"strings"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// TokenStore persists device push tokens.
type TokenStore interface {
	Set(ctx context.Context, userID, token string) error
	Get(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, userID string) error
}

// UserService handles profile reads and push token registration.
type UserService struct {
	userRepo repository.UserRepository
	tokens   TokenStore
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, tokens TokenStore) *UserService {
	return &UserService{userRepo: userRepo, tokens: tokens}
}

// GetProfile retrieves a user's profile.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// RegisterPushToken stores the user's current device token. An empty token
// unregisters the device.
func (s *UserService) RegisterPushToken(ctx context.Context, userID, token string) error {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return s.tokens.Delete(ctx, userID)
	}
	return s.tokens.Set(ctx, userID, token)
}
