package tests

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"campusride/internal/chat"
	"campusride/internal/domain"
	"campusride/internal/service"
)

// env bundles a fully wired trip and chat service over mocks.
type env struct {
	tripRepo    *MockTripRepository
	userRepo    *MockUserRepository
	chats       *chat.Registry
	sched       *RecordingScheduler
	broadcaster *RecordingBroadcaster
	publisher   *RecordingPublisher
	locker      *MockLockStore
	cache       *MockListingCache
	trips       *service.TripService
	chatSvc     *service.ChatService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		tripRepo:    NewMockTripRepository(),
		userRepo:    NewMockUserRepository(),
		chats:       chat.NewRegistry(),
		sched:       NewRecordingScheduler(),
		broadcaster: NewRecordingBroadcaster(),
		publisher:   NewRecordingPublisher(),
		locker:      NewMockLockStore(),
		cache:       NewMockListingCache(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifications := service.NewNotificationService(nil, NewMockTokenStore(), logger)

	e.trips = service.NewTripService(service.TripServiceDeps{
		TripRepo:      e.tripRepo,
		UserRepo:      e.userRepo,
		Chats:         e.chats,
		Scheduler:     e.sched,
		Notifications: notifications,
		Broadcaster:   e.broadcaster,
		Events:        e.publisher,
		Locker:        e.locker,
		Cache:         e.cache,
		Logger:        logger,
	})
	e.chatSvc = service.NewChatService(e.tripRepo, e.userRepo, e.chats, notifications, e.publisher, logger)

	return e
}

func (e *env) seedDriver(id string) {
	e.userRepo.AddUser(&domain.User{
		ID:             id,
		FirstName:      "Carlos",
		Role:           domain.RoleDriver,
		DriverApproval: domain.DriverApprovalApproved,
	})
}

func (e *env) seedPassenger(id string) {
	e.userRepo.AddUser(&domain.User{
		ID:        id,
		FirstName: "Ana",
		Role:      domain.RolePassenger,
	})
}

func (e *env) createTrip(t *testing.T, driverID string, seats int) *domain.Trip {
	t.Helper()

	trip, err := e.trips.CreateTrip(context.Background(), service.CreateTripRequest{
		DriverID:       driverID,
		Origin:         domain.GeoPoint{Lat: -12.085, Lon: -76.971, Name: "Campus"},
		Destination:    domain.GeoPoint{Lat: -12.121, Lon: -77.030, Name: "Miraflores"},
		DepartureTime:  time.Now().Add(30 * time.Minute),
		AvailableSeats: seats,
		PricePerSeat:   8.50,
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	return trip
}

// bookAndConfirm walks a passenger through request plus driver approval.
func (e *env) bookAndConfirm(t *testing.T, tripID, driverID, passengerID string) {
	t.Helper()

	if _, err := e.trips.RequestBooking(context.Background(), tripID, passengerID); err != nil {
		t.Fatalf("RequestBooking(%s): %v", passengerID, err)
	}
	if _, err := e.trips.ManageBooking(context.Background(), service.ManageBookingRequest{
		TripID:      tripID,
		PassengerID: passengerID,
		Decision:    domain.PassengerStatusConfirmed,
		ActorID:     driverID,
	}); err != nil {
		t.Fatalf("ManageBooking(%s): %v", passengerID, err)
	}
}
