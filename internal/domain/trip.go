package domain

import "time"

// TripStatus represents the current status of a trip.
type TripStatus string

const (
	TripStatusWaiting    TripStatus = "waiting"
	TripStatusFull       TripStatus = "full"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusCompleted  TripStatus = "completed"
	TripStatusExpired    TripStatus = "expired"
	TripStatusCancelled  TripStatus = "cancelled"
)

// PassengerStatus represents the state of a passenger's booking on a trip.
type PassengerStatus string

const (
	PassengerStatusPending   PassengerStatus = "pending"
	PassengerStatusConfirmed PassengerStatus = "confirmed"
	PassengerStatusRejected  PassengerStatus = "rejected"
	PassengerStatusCancelled PassengerStatus = "cancelled"
)

// GeoPoint is a named location.
type GeoPoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

// Passenger is one booking entry on a trip.
type Passenger struct {
	UserID    string          `json:"user_id"`
	Status    PassengerStatus `json:"status"`
	BookedAt  time.Time       `json:"booked_at"`
	InVehicle bool            `json:"in_vehicle"`
}

// Trip represents a driver-published ride offer.
type Trip struct {
	ID             string
	DriverID       string
	Origin         GeoPoint
	Destination    GeoPoint
	DepartureTime  time.Time
	AvailableSeats int
	SeatsBooked    int
	PricePerSeat   float64
	Description    string
	Status         TripStatus
	Passengers     []Passenger
	CreatedAt      time.Time
	ExpiresAt      time.Time
	CancelReason   string

	// Version increments on every persisted update and backs the
	// conditional-update discipline for seat accounting.
	Version int64
}

// IsTerminal reports whether the trip can no longer change state.
func (t *Trip) IsTerminal() bool {
	switch t.Status {
	case TripStatusCompleted, TripStatusExpired, TripStatusCancelled:
		return true
	}
	return false
}

// IsExpired reports whether the booking window has passed at the given time.
// In-progress trips never expire.
func (t *Trip) IsExpired(now time.Time) bool {
	if t.Status == TripStatusInProgress {
		return false
	}
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// AcceptsBookings reports whether passengers may request seats.
func (t *Trip) AcceptsBookings() bool {
	return t.Status == TripStatusWaiting || t.Status == TripStatusFull
}

// FindPassenger returns the booking entry for userID, or nil.
func (t *Trip) FindPassenger(userID string) *Passenger {
	for i := range t.Passengers {
		if t.Passengers[i].UserID == userID {
			return &t.Passengers[i]
		}
	}
	return nil
}

// ConfirmedPassengers returns the confirmed booking entries in booking order.
func (t *Trip) ConfirmedPassengers() []Passenger {
	var confirmed []Passenger
	for _, p := range t.Passengers {
		if p.Status == PassengerStatusConfirmed {
			confirmed = append(confirmed, p)
		}
	}
	return confirmed
}

// IsConfirmedPassenger reports whether userID holds a confirmed seat.
func (t *Trip) IsConfirmedPassenger(userID string) bool {
	p := t.FindPassenger(userID)
	return p != nil && p.Status == PassengerStatusConfirmed
}
