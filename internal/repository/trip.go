package repository

import (
	"context"
	"time"

	"campusride/internal/domain"
)

// TripRepository defines the persistence operations for trips.
type TripRepository interface {
	// Create persists a new trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// GetAvailable retrieves trips open for booking (waiting or full) whose
	// booking window has not passed at the given instant, newest first.
	GetAvailable(ctx context.Context, now time.Time) ([]*domain.Trip, error)

	// GetByDriverID retrieves the driver's trips in the given statuses,
	// newest first.
	GetByDriverID(ctx context.Context, driverID string, statuses []domain.TripStatus) ([]*domain.Trip, error)

	// GetByConfirmedPassenger retrieves trips where the user holds a
	// confirmed seat, restricted to the given statuses, newest first.
	GetByConfirmedPassenger(ctx context.Context, userID string, statuses []domain.TripStatus) ([]*domain.Trip, error)

	// GetActiveByDriverID retrieves the driver's active trip: status in
	// {waiting, full, in_progress} and either in progress or not yet past
	// its booking window. Returns nil if no active trip exists.
	GetActiveByDriverID(ctx context.Context, driverID string, now time.Time) (*domain.Trip, error)

	// UpdateVersioned persists the trip iff the stored version equals
	// trip.Version, then increments trip.Version. Returns
	// ErrVersionConflict when another writer got there first.
	UpdateVersioned(ctx context.Context, trip *domain.Trip) error
}
