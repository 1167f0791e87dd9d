package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
// Passenger entries live in a JSONB column so a trip is read and written as a
// single document, matching the conditional-update discipline on version.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

const tripColumns = `
	id, driver_id,
	origin_lat, origin_lon, origin_name,
	destination_lat, destination_lon, destination_name,
	departure_time, available_seats, seats_booked, price_per_seat,
	description, status, passengers, created_at, expires_at,
	cancel_reason, version
`

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	passengers, err := json.Marshal(trip.Passengers)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, query,
		trip.ID,
		trip.DriverID,
		trip.Origin.Lat, trip.Origin.Lon, trip.Origin.Name,
		trip.Destination.Lat, trip.Destination.Lon, trip.Destination.Name,
		trip.DepartureTime,
		trip.AvailableSeats,
		trip.SeatsBooked,
		trip.PricePerSeat,
		trip.Description,
		trip.Status,
		passengers,
		trip.CreatedAt,
		trip.ExpiresAt,
		trip.CancelReason,
		trip.Version,
	)

	return err
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	trip, err := scanTrip(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return trip, nil
}

// GetAvailable retrieves open trips whose booking window has not passed.
func (r *TripRepository) GetAvailable(ctx context.Context, now time.Time) ([]*domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE status = ANY($1) AND expires_at > $2
		ORDER BY created_at DESC
	`

	statuses := []string{string(domain.TripStatusWaiting), string(domain.TripStatusFull)}
	return r.queryTrips(ctx, query, pq.Array(statuses), now)
}

// GetByDriverID retrieves the driver's trips in the given statuses.
func (r *TripRepository) GetByDriverID(ctx context.Context, driverID string, statuses []domain.TripStatus) ([]*domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE driver_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC
	`

	return r.queryTrips(ctx, query, driverID, pq.Array(statusStrings(statuses)))
}

// GetByConfirmedPassenger retrieves trips where the user holds a confirmed seat.
func (r *TripRepository) GetByConfirmedPassenger(ctx context.Context, userID string, statuses []domain.TripStatus) ([]*domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE status = ANY($2)
		  AND passengers @> jsonb_build_array(jsonb_build_object('user_id', $1::text, 'status', 'confirmed'))
		ORDER BY created_at DESC
	`

	return r.queryTrips(ctx, query, userID, pq.Array(statusStrings(statuses)))
}

// GetActiveByDriverID retrieves the active trip for a driver.
// Returns nil if no active trip exists.
func (r *TripRepository) GetActiveByDriverID(ctx context.Context, driverID string, now time.Time) (*domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE driver_id = $1
		  AND status = ANY($2)
		  AND (status = $3 OR expires_at > $4)
		LIMIT 1
	`

	active := []string{
		string(domain.TripStatusWaiting),
		string(domain.TripStatusFull),
		string(domain.TripStatusInProgress),
	}

	trip, err := scanTrip(r.q.QueryRowContext(ctx, query,
		driverID, pq.Array(active), domain.TripStatusInProgress, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return trip, nil
}

// UpdateVersioned persists the trip iff the stored version matches.
func (r *TripRepository) UpdateVersioned(ctx context.Context, trip *domain.Trip) error {
	query := `
		UPDATE trips
		SET departure_time = $1, available_seats = $2, seats_booked = $3,
		    price_per_seat = $4, description = $5, status = $6,
		    passengers = $7, expires_at = $8, cancel_reason = $9,
		    version = version + 1
		WHERE id = $10 AND version = $11
	`

	passengers, err := json.Marshal(trip.Passengers)
	if err != nil {
		return err
	}

	result, err := r.q.ExecContext(ctx, query,
		trip.DepartureTime,
		trip.AvailableSeats,
		trip.SeatsBooked,
		trip.PricePerSeat,
		trip.Description,
		trip.Status,
		passengers,
		trip.ExpiresAt,
		trip.CancelReason,
		trip.ID,
		trip.Version,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either the trip is gone or another writer bumped the version.
		if _, err := r.GetByID(ctx, trip.ID); err != nil {
			return err
		}
		return repository.ErrVersionConflict
	}

	trip.Version++
	return nil
}

func (r *TripRepository) queryTrips(ctx context.Context, query string, args ...any) ([]*domain.Trip, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []*domain.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}

	return trips, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*domain.Trip, error) {
	var trip domain.Trip
	var passengers []byte
	var cancelReason sql.NullString

	err := row.Scan(
		&trip.ID,
		&trip.DriverID,
		&trip.Origin.Lat, &trip.Origin.Lon, &trip.Origin.Name,
		&trip.Destination.Lat, &trip.Destination.Lon, &trip.Destination.Name,
		&trip.DepartureTime,
		&trip.AvailableSeats,
		&trip.SeatsBooked,
		&trip.PricePerSeat,
		&trip.Description,
		&trip.Status,
		&passengers,
		&trip.CreatedAt,
		&trip.ExpiresAt,
		&cancelReason,
		&trip.Version,
	)
	if err != nil {
		return nil, err
	}

	if len(passengers) > 0 {
		if err := json.Unmarshal(passengers, &trip.Passengers); err != nil {
			return nil, err
		}
	}
	if cancelReason.Valid {
		trip.CancelReason = cancelReason.String
	}

	return &trip, nil
}

func statusStrings(statuses []domain.TripStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
