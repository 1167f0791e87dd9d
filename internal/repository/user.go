package repository

import (
	"context"

	"campusride/internal/domain"
)

// UserRepository defines the persistence operations for users.
type UserRepository interface {
	// Create adds a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByRole retrieves all users with the given role.
	GetByRole(ctx context.Context, role domain.UserRole) ([]*domain.User, error)
}
