package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusride/internal/chat"
	"campusride/internal/domain"
	"campusride/internal/events"
	"campusride/internal/observability"
	"campusride/internal/repository"
)

// DefaultBookingWindow is how long a trip accepts bookings after creation.
// Fixed at creation, never extended.
const DefaultBookingWindow = 10 * time.Minute

// maxUpdateRetries bounds the optimistic-update retry loop. Contention on a
// single trip is a handful of humans, so conflicts resolve within a retry
// or two.
const maxUpdateRetries = 5

// Broadcaster pushes realtime events to connected sessions. Implementations
// must not block; delivery is best-effort.
type Broadcaster interface {
	// ToUser delivers to every session authenticated as userID.
	ToUser(userID, event string, payload any)
	// ToRoom delivers to every session joined to the trip's chat room.
	ToRoom(tripID, event string, payload any)
	// Broadcast delivers to every connected session.
	Broadcast(event string, payload any)
}

// EventPublisher streams committed trip events to external consumers.
type EventPublisher interface {
	Publish(event, tripID string, payload any)
}

// ExpiryScheduler arms the one-shot expiry timer for a trip.
type ExpiryScheduler interface {
	Schedule(tripID string, deadline time.Time)
}

// DriverLocker serializes trip creation per driver across processes.
type DriverLocker interface {
	AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error)
	ReleaseDriverLock(ctx context.Context, driverID string) error
}

// ListingCache caches the available-trips listing.
type ListingCache interface {
	GetAvailableTrips(ctx context.Context, dest any) (bool, error)
	SetAvailableTrips(ctx context.Context, listing any) error
	InvalidateAvailableTrips(ctx context.Context) error
}

// TripServiceDeps contains the dependencies for a TripService. Locker, Cache
// and Events may be nil; BookingWindow defaults to DefaultBookingWindow.
type TripServiceDeps struct {
	TripRepo      repository.TripRepository
	UserRepo      repository.UserRepository
	Chats         *chat.Registry
	Scheduler     ExpiryScheduler
	Notifications *NotificationService
	Broadcaster   Broadcaster
	Events        EventPublisher
	Locker        DriverLocker
	Cache         ListingCache
	Logger        *slog.Logger
	BookingWindow time.Duration
}

// TripService owns the trip lifecycle: creation, booking, start, cancel,
// leave, complete, in-vehicle confirmation and expiry. Every mutation goes
// through a versioned conditional update so the seat invariant holds under
// concurrent callers.
type TripService struct {
	tripRepo      repository.TripRepository
	userRepo      repository.UserRepository
	chats         *chat.Registry
	scheduler     ExpiryScheduler
	notifications *NotificationService
	broadcaster   Broadcaster
	events        EventPublisher
	locker        DriverLocker
	cache         ListingCache
	logger        *slog.Logger
	bookingWindow time.Duration
}

// NewTripService creates a new TripService.
func NewTripService(deps TripServiceDeps) *TripService {
	window := deps.BookingWindow
	if window <= 0 {
		window = DefaultBookingWindow
	}
	return &TripService{
		tripRepo:      deps.TripRepo,
		userRepo:      deps.UserRepo,
		chats:         deps.Chats,
		scheduler:     deps.Scheduler,
		notifications: deps.Notifications,
		broadcaster:   deps.Broadcaster,
		events:        deps.Events,
		locker:        deps.Locker,
		cache:         deps.Cache,
		logger:        deps.Logger,
		bookingWindow: window,
	}
}

// CreateTripRequest contains the parameters for publishing a trip.
type CreateTripRequest struct {
	DriverID       string
	Origin         domain.GeoPoint
	Destination    domain.GeoPoint
	DepartureTime  time.Time
	AvailableSeats int
	PricePerSeat   float64
	Description    string
}

// CreateTrip publishes a new trip for an approved driver. The driver may hold
// at most one active trip; the new trip opens its chat, arms its expiry timer
// and is announced to all passengers.
func (s *TripService) CreateTrip(ctx context.Context, req CreateTripRequest) (*domain.Trip, error) {
	if req.DriverID == "" || req.Origin.Name == "" || req.Destination.Name == "" || req.DepartureTime.IsZero() {
		return nil, ErrMissingFields
	}
	if req.AvailableSeats < 1 || req.AvailableSeats > 20 {
		return nil, ErrInvalidSeats
	}
	if req.PricePerSeat < 0 {
		return nil, ErrInvalidPrice
	}

	driver, err := s.userRepo.GetByID(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}
	if driver.Role != domain.RoleDriver {
		return nil, ErrNotDriverRole
	}
	if !driver.MayCreateTrips() {
		return nil, ErrDriverNotApproved
	}

	// Serialize concurrent creations by the same driver so both cannot pass
	// the active-trip check below.
	if s.locker != nil {
		ok, err := s.locker.AcquireDriverLock(ctx, req.DriverID, 10*time.Second)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrDriverHasActiveTrip
		}
		defer func() {
			_ = s.locker.ReleaseDriverLock(ctx, req.DriverID)
		}()
	}

	now := time.Now()
	existing, err := s.tripRepo.GetActiveByDriverID(ctx, req.DriverID, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDriverHasActiveTrip
	}

	trip := &domain.Trip{
		ID:             uuid.New().String(),
		DriverID:       req.DriverID,
		Origin:         req.Origin,
		Destination:    req.Destination,
		DepartureTime:  req.DepartureTime,
		AvailableSeats: req.AvailableSeats,
		PricePerSeat:   req.PricePerSeat,
		Description:    req.Description,
		Status:         domain.TripStatusWaiting,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.bookingWindow),
	}

	if err := s.tripRepo.Create(ctx, trip); err != nil {
		return nil, err
	}

	s.chats.Initialize(trip.ID, trip.DriverID)
	s.scheduler.Schedule(trip.ID, trip.ExpiresAt)
	s.invalidateListing(ctx)
	observability.TripsCreatedTotal.Inc()

	summary := tripSummary(trip)
	summary["message"] = fmt.Sprintf("Nuevo viaje disponible de %s a %s", trip.Origin.Name, trip.Destination.Name)
	s.broadcast(func(b Broadcaster) { b.Broadcast(events.TripCreated, summary) })
	s.publish(events.TripCreated, trip.ID, tripSummary(trip))

	if passengers, err := s.userRepo.GetByRole(ctx, domain.RolePassenger); err != nil {
		s.logger.Warn("passenger fan-out lookup failed", "trip_id", trip.ID, "error", err)
	} else {
		s.notifications.NotifyNewTripAvailable(trip, driver, passengers)
	}

	s.logger.Info("trip created", "trip_id", trip.ID, "driver_id", trip.DriverID, "expires_at", trip.ExpiresAt)
	return trip, nil
}

// RequestBooking registers a passenger's request for a seat. A rejected
// passenger may resubmit; a pending or confirmed one may not.
func (s *TripService) RequestBooking(ctx context.Context, tripID, passengerID string) (*domain.Trip, error) {
	passenger, err := s.userRepo.GetByID(ctx, passengerID)
	if err != nil {
		return nil, err
	}

	resubmitted := false
	trip, err := s.updateTrip(ctx, tripID, func(t *domain.Trip) error {
		resubmitted = false
		if t.DriverID == passengerID {
			return ErrSelfBooking
		}
		if !t.AcceptsBookings() {
			return ErrTripNotOpen
		}
		if t.IsExpired(time.Now()) {
			return ErrTripExpired
		}

		entry := t.FindPassenger(passengerID)
		switch {
		case entry == nil:
			t.Passengers = append(t.Passengers, domain.Passenger{
				UserID:   passengerID,
				Status:   domain.PassengerStatusPending,
				BookedAt: time.Now(),
			})
		case entry.Status == domain.PassengerStatusRejected:
			entry.Status = domain.PassengerStatusPending
			entry.BookedAt = time.Now()
			resubmitted = true
		case entry.Status == domain.PassengerStatusPending:
			return ErrBookingAlreadyPending
		default:
			return ErrAlreadyConfirmed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifications.NotifyNewBookingRequest(trip, passenger, resubmitted)
	s.broadcast(func(b Broadcaster) {
		b.ToUser(trip.DriverID, events.BookingRequested, map[string]any{
			"trip_id":        trip.ID,
			"passenger_id":   passengerID,
			"passenger_name": passenger.FirstName,
			"resubmitted":    resubmitted,
		})
	})
	s.publish(events.BookingRequested, trip.ID, map[string]any{"passenger_id": passengerID})

	return trip, nil
}

// ManageBookingRequest contains the parameters for deciding a booking.
type ManageBookingRequest struct {
	TripID      string
	PassengerID string
	Decision    domain.PassengerStatus
	ActorID     string
}

// ManageBooking lets the driver confirm or reject a pending request.
// Confirmation takes a seat and may flip the trip to full; it never
// overbooks, even under concurrent approvals.
func (s *TripService) ManageBooking(ctx context.Context, req ManageBookingRequest) (*domain.Trip, error) {
	if req.Decision != domain.PassengerStatusConfirmed && req.Decision != domain.PassengerStatusRejected {
		return nil, ErrInvalidDecision
	}

	trip, err := s.updateTrip(ctx, req.TripID, func(t *domain.Trip) error {
		if t.DriverID != req.ActorID {
			return ErrNotTripDriver
		}

		entry := t.FindPassenger(req.PassengerID)
		if entry == nil || entry.Status != domain.PassengerStatusPending {
			return ErrBookingNotFound
		}

		if req.Decision == domain.PassengerStatusConfirmed {
			if t.SeatsBooked >= t.AvailableSeats {
				return ErrTripFull
			}
			entry.Status = domain.PassengerStatusConfirmed
			t.SeatsBooked++
			if t.SeatsBooked == t.AvailableSeats && t.Status == domain.TripStatusWaiting {
				t.Status = domain.TripStatusFull
			}
		} else {
			entry.Status = domain.PassengerStatusRejected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.Decision == domain.PassengerStatusConfirmed {
		s.chats.AddParticipant(trip.ID, req.PassengerID)
	}
	observability.BookingDecisionsTotal.WithLabelValues(string(req.Decision)).Inc()
	s.invalidateListing(ctx)

	s.notifications.NotifyBookingDecision(trip, req.PassengerID, req.Decision)
	s.broadcast(func(b Broadcaster) {
		payload := map[string]any{
			"trip_id":      trip.ID,
			"passenger_id": req.PassengerID,
			"status":       string(req.Decision),
			"seats_booked": trip.SeatsBooked,
			"trip_status":  string(trip.Status),
		}
		b.ToUser(req.PassengerID, events.BookingUpdated, payload)
		b.ToUser(trip.DriverID, events.BookingUpdated, payload)
	})
	s.publish(events.BookingUpdated, trip.ID, map[string]any{
		"passenger_id": req.PassengerID,
		"status":       string(req.Decision),
	})

	return trip, nil
}

// StartTrip moves a trip to in_progress. Only the driver may start, only
// from waiting or full, only before expiry, and only with at least one
// confirmed passenger. From here on the expiry deadline is irrelevant.
func (s *TripService) StartTrip(ctx context.Context, tripID, actorID string) (*domain.Trip, error) {
	driver, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	trip, err := s.updateTrip(ctx, tripID, func(t *domain.Trip) error {
		if t.DriverID != actorID {
			return ErrNotTripDriver
		}
		if !t.AcceptsBookings() {
			return ErrTripNotOpen
		}
		if t.IsExpired(time.Now()) {
			return ErrTripExpired
		}
		if len(t.ConfirmedPassengers()) == 0 {
			return ErrNoConfirmedPassengers
		}
		t.Status = domain.TripStatusInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListing(ctx)
	s.notifications.NotifyTripStarted(trip, driver)
	s.broadcast(func(b Broadcaster) {
		for _, p := range trip.ConfirmedPassengers() {
			b.ToUser(p.UserID, events.TripStarted, map[string]any{"trip_id": trip.ID})
		}
	})
	s.publish(events.TripStarted, trip.ID, nil)

	s.logger.Info("trip started", "trip_id", trip.ID, "driver_id", actorID)
	return trip, nil
}

// CancelTrip cancels a waiting or full trip. Once any passenger is in the
// vehicle cancellation is off the table; with confirmed passengers a reason
// is mandatory. Closes the chat and notifies pending and confirmed passengers.
func (s *TripService) CancelTrip(ctx context.Context, tripID, actorID, reason string) (*domain.Trip, error) {
	reason = strings.TrimSpace(reason)

	trip, err := s.updateTrip(ctx, tripID, func(t *domain.Trip) error {
		if t.DriverID != actorID {
			return ErrNotTripDriver
		}

		// Mid-ride, a boarded passenger outranks the status check: the
		// driver gets the specific conflict, not a generic InvalidState.
		confirmed := t.ConfirmedPassengers()
		if t.Status == domain.TripStatusInProgress {
			for _, p := range confirmed {
				if p.InVehicle {
					return ErrPassengersInVehicle
				}
			}
		}
		if !t.AcceptsBookings() {
			return ErrTripNotOpen
		}
		if len(confirmed) > 0 && reason == "" {
			return ErrCancelReasonRequired
		}

		t.Status = domain.TripStatusCancelled
		t.CancelReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.chats.Close(trip.ID)
	s.invalidateListing(ctx)
	observability.TripsCancelledTotal.Inc()

	s.notifications.NotifyTripCancelled(trip, reason)
	s.broadcast(func(b Broadcaster) {
		b.ToRoom(trip.ID, events.ChatClosed, map[string]any{"trip_id": trip.ID, "reason": "cancelado"})
		for _, p := range trip.Passengers {
			if p.Status == domain.PassengerStatusPending || p.Status == domain.PassengerStatusConfirmed {
				b.ToUser(p.UserID, events.TripCancelled, map[string]any{"trip_id": trip.ID, "reason": reason})
			}
		}
	})
	s.publish(events.TripCancelled, trip.ID, map[string]any{"reason": reason})

	s.logger.Info("trip cancelled", "trip_id", trip.ID, "driver_id", actorID, "reason", reason)
	return trip, nil
}

// LeaveTrip removes a confirmed passenger before the trip starts. The seat
// frees up and a full trip returns to waiting.
func (s *TripService) LeaveTrip(ctx context.Context, tripID, passengerID string) (*domain.Trip, error) {
	passenger, err := s.userRepo.GetByID(ctx, passengerID)
	if err != nil {
		return nil, err
	}

	trip, err := s.updateTrip(ctx, tripID, func(t *domain.Trip) error {
		if !t.AcceptsBookings() {
			return ErrTripNotOpen
		}

		idx := -1
		for i := range t.Passengers {
			if t.Passengers[i].UserID == passengerID && t.Passengers[i].Status == domain.PassengerStatusConfirmed {
				idx = i
				break
			}
		}
		if idx == -1 {
			return ErrPassengerNotConfirmed
		}

		t.Passengers = append(t.Passengers[:idx], t.Passengers[idx+1:]...)
		if t.SeatsBooked > 0 {
			t.SeatsBooked--
		}
		if t.Status == domain.TripStatusFull && t.SeatsBooked < t.AvailableSeats {
			t.Status = domain.TripStatusWaiting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.chats.RemoveParticipant(trip.ID, passengerID)
	s.invalidateListing(ctx)

	s.notifications.NotifyPassengerLeft(trip, passenger)
	s.broadcast(func(b Broadcaster) {
		b.ToRoom(trip.ID, events.PassengerLeft, map[string]any{
			"trip_id":        trip.ID,
			"passenger_id":   passengerID,
			"passenger_name": passenger.FirstName,
		})
		b.ToUser(trip.DriverID, events.PassengerLeft, map[string]any{
			"trip_id":      trip.ID,
			"passenger_id": passengerID,
		})
	})
	s.publish(events.PassengerLeft, trip.ID, map[string]any{"passenger_id": passengerID})

	return trip, nil
}

// CompleteTrip finishes an in-progress trip. This is the only transition
// that later enables rating of participants.
func (s *TripService) CompleteTrip(ctx context.Context, tripID, actorID string) (*domain.Trip, error) {
	driver, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	trip, err := s.updateTrip(ctx, tripID, func(t *domain.Trip) error {
		if t.DriverID != actorID {
			return ErrNotTripDriver
		}
		if t.Status != domain.TripStatusInProgress {
			return ErrTripNotInProgress
		}
		t.Status = domain.TripStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.chats.Close(trip.ID)
	observability.TripsCompletedTotal.Inc()

	s.notifications.NotifyTripCompleted(trip, driver)
	s.broadcast(func(b Broadcaster) {
		b.ToRoom(trip.ID, events.ChatClosed, map[string]any{"trip_id": trip.ID, "reason": "completado"})
		for _, p := range trip.ConfirmedPassengers() {
			b.ToUser(p.UserID, events.TripCompleted, map[string]any{"trip_id": trip.ID})
		}
	})
	s.publish(events.TripCompleted, trip.ID, nil)

	s.logger.Info("trip completed", "trip_id", trip.ID, "driver_id", actorID)
	return trip, nil
}

// ConfirmInVehicle marks a confirmed passenger as physically on board.
// Only valid while the trip is in progress; boarding blocks cancellation.
func (s *TripService) ConfirmInVehicle(ctx context.Context, tripID, passengerID string) (*domain.Trip, error) {
	passenger, err := s.userRepo.GetByID(ctx, passengerID)
	if err != nil {
		return nil, err
	}

	trip, err := s.updateTrip(ctx, tripID, func(t *domain.Trip) error {
		if t.Status != domain.TripStatusInProgress {
			return ErrTripNotInProgress
		}

		entry := t.FindPassenger(passengerID)
		if entry == nil || entry.Status != domain.PassengerStatusConfirmed {
			return ErrPassengerNotConfirmed
		}
		if entry.InVehicle {
			return ErrAlreadyInVehicle
		}
		entry.InVehicle = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifications.NotifyPassengerInVehicle(trip, passenger)
	s.broadcast(func(b Broadcaster) {
		payload := map[string]any{"trip_id": trip.ID, "passenger_id": passengerID}
		b.ToUser(trip.DriverID, events.PassengerInVehicle, payload)
		b.ToRoom(trip.ID, events.PassengerInVehicle, payload)
	})
	s.publish(events.PassengerInVehicle, trip.ID, map[string]any{"passenger_id": passengerID})

	return trip, nil
}

// ExpireTrip is the scheduler's target: it moves a still-bookable trip to
// expired and closes its chat. Firing against a trip that already moved on
// is a defined no-op, which makes a stale timer harmless.
func (s *TripService) ExpireTrip(ctx context.Context, tripID string) error {
	var expired bool
	trip, err := s.updateTrip(ctx, tripID, func(t *domain.Trip) error {
		if !t.AcceptsBookings() {
			expired = false
			return errSkipUpdate
		}
		t.Status = domain.TripStatusExpired
		expired = true
		return nil
	})
	if err != nil {
		return err
	}
	if !expired {
		return nil
	}

	s.chats.Close(trip.ID)
	s.invalidateListing(ctx)
	observability.TripsExpiredTotal.Inc()

	s.broadcast(func(b Broadcaster) {
		b.ToRoom(trip.ID, events.ChatClosed, map[string]any{"trip_id": trip.ID, "reason": "expirado"})
		b.Broadcast(events.TripExpired, map[string]any{"trip_id": trip.ID})
	})
	s.publish(events.TripExpired, trip.ID, nil)

	s.logger.Info("trip expired", "trip_id", trip.ID)
	return nil
}

// GetTrip retrieves a trip by ID.
func (s *TripService) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	return s.tripRepo.GetByID(ctx, tripID)
}

// GetAvailableTrips retrieves bookable trips, newest first, through the
// listing cache when one is configured.
func (s *TripService) GetAvailableTrips(ctx context.Context) ([]*domain.Trip, error) {
	if s.cache != nil {
		var cached []*domain.Trip
		if hit, err := s.cache.GetAvailableTrips(ctx, &cached); err == nil && hit {
			return cached, nil
		}
	}

	trips, err := s.tripRepo.GetAvailable(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetAvailableTrips(ctx, trips); err != nil {
			s.logger.Warn("listing cache write failed", "error", err)
		}
	}
	return trips, nil
}

// relevantStatuses are the trips shown in personal history listings;
// expired and cancelled trips are omitted.
var relevantStatuses = []domain.TripStatus{
	domain.TripStatusInProgress,
	domain.TripStatusCompleted,
	domain.TripStatusWaiting,
	domain.TripStatusFull,
}

// GetDriverTrips retrieves a driver's published trips.
func (s *TripService) GetDriverTrips(ctx context.Context, driverID string) ([]*domain.Trip, error) {
	return s.tripRepo.GetByDriverID(ctx, driverID, relevantStatuses)
}

// GetPassengerTrips retrieves the trips where the user holds a confirmed seat.
func (s *TripService) GetPassengerTrips(ctx context.Context, userID string) ([]*domain.Trip, error) {
	return s.tripRepo.GetByConfirmedPassenger(ctx, userID, relevantStatuses)
}

// errSkipUpdate aborts an updateTrip closure without persisting and without
// surfacing an error. Used for defined no-ops.
var errSkipUpdate = errors.New("skip update")

// updateTrip loads the trip, applies mutate, and persists with a conditional
// update, retrying from a fresh read on version conflicts. The closure must
// be pure against the passed trip: it can run several times.
func (s *TripService) updateTrip(ctx context.Context, tripID string, mutate func(*domain.Trip) error) (*domain.Trip, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		trip, err := s.tripRepo.GetByID(ctx, tripID)
		if err != nil {
			return nil, err
		}

		if err := mutate(trip); err != nil {
			if errors.Is(err, errSkipUpdate) {
				return trip, nil
			}
			return nil, err
		}

		err = s.tripRepo.UpdateVersioned(ctx, trip)
		if err == nil {
			return trip, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, ErrConcurrentUpdate
}

// broadcast runs fn against the configured broadcaster, if any.
func (s *TripService) broadcast(fn func(Broadcaster)) {
	if s.broadcaster != nil {
		fn(s.broadcaster)
	}
}

// publish streams a committed event, if a publisher is configured.
func (s *TripService) publish(event, tripID string, payload any) {
	if s.events != nil {
		s.events.Publish(event, tripID, payload)
	}
}

func (s *TripService) invalidateListing(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAvailableTrips(ctx); err != nil {
		s.logger.Warn("listing cache invalidation failed", "error", err)
	}
}

func tripSummary(t *domain.Trip) map[string]any {
	return map[string]any{
		"trip_id":         t.ID,
		"driver_id":       t.DriverID,
		"origin":          t.Origin,
		"destination":     t.Destination,
		"departure_time":  t.DepartureTime,
		"available_seats": t.AvailableSeats,
		"seats_booked":    t.SeatsBooked,
		"price_per_seat":  t.PricePerSeat,
		"status":          string(t.Status),
		"expires_at":      t.ExpiresAt,
	}
}
