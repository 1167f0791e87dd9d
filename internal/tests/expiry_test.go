package tests

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"campusride/internal/chat"
	"campusride/internal/domain"
	"campusride/internal/events"
	"campusride/internal/scheduler"
	"campusride/internal/service"
)

func TestExpireTrip(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	trip := e.createTrip(t, "driver-1", 2)

	if err := e.trips.ExpireTrip(context.Background(), trip.ID); err != nil {
		t.Fatalf("ExpireTrip: %v", err)
	}

	stored := e.tripRepo.GetTrip(trip.ID)
	if stored.Status != domain.TripStatusExpired {
		t.Errorf("status = %s, want expired", stored.Status)
	}
	if e.chats.IsActive(trip.ID) {
		t.Error("chat is still open after expiry")
	}
	if e.broadcaster.CountEvent(events.TripExpired) != 1 {
		t.Error("trip.expired was not broadcast")
	}
	if e.broadcaster.CountEvent(events.ChatClosed) != 1 {
		t.Error("chat.closed was not broadcast")
	}
}

func TestExpireTripIsNoopAfterStart(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")
	if _, err := e.trips.StartTrip(context.Background(), trip.ID, "driver-1"); err != nil {
		t.Fatalf("StartTrip: %v", err)
	}

	if err := e.trips.ExpireTrip(context.Background(), trip.ID); err != nil {
		t.Fatalf("ExpireTrip: %v", err)
	}

	stored := e.tripRepo.GetTrip(trip.ID)
	if stored.Status != domain.TripStatusInProgress {
		t.Errorf("status = %s, want in_progress untouched", stored.Status)
	}
	if e.broadcaster.CountEvent(events.TripExpired) != 0 {
		t.Error("trip.expired broadcast for a started trip")
	}
}

func TestExpireTripIsNoopWhenTerminal(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	trip := e.createTrip(t, "driver-1", 2)
	if _, err := e.trips.CancelTrip(context.Background(), trip.ID, "driver-1", ""); err != nil {
		t.Fatalf("CancelTrip: %v", err)
	}

	if err := e.trips.ExpireTrip(context.Background(), trip.ID); err != nil {
		t.Fatalf("ExpireTrip: %v", err)
	}
	if got := e.tripRepo.GetTrip(trip.ID); got.Status != domain.TripStatusCancelled {
		t.Errorf("status = %s, want cancelled untouched", got.Status)
	}
}

// TestSchedulerExpiresTrip wires a real timer-backed scheduler with a tiny
// booking window and waits for the expiry to fire end to end.
func TestSchedulerExpiresTrip(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	userRepo := NewMockUserRepository()
	userRepo.AddUser(&domain.User{
		ID:             "driver-1",
		FirstName:      "Carlos",
		Role:           domain.RoleDriver,
		DriverApproval: domain.DriverApprovalApproved,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifications := service.NewNotificationService(nil, NewMockTokenStore(), logger)

	var trips *service.TripService
	sched := scheduler.New(func(ctx context.Context, tripID string) {
		_ = trips.ExpireTrip(ctx, tripID)
	}, logger)
	defer sched.Stop()

	trips = service.NewTripService(service.TripServiceDeps{
		TripRepo:      tripRepo,
		UserRepo:      userRepo,
		Chats:         chat.NewRegistry(),
		Scheduler:     sched,
		Notifications: notifications,
		Logger:        logger,
		BookingWindow: 20 * time.Millisecond,
	})

	trip, err := trips.CreateTrip(context.Background(), service.CreateTripRequest{
		DriverID:       "driver-1",
		Origin:         domain.GeoPoint{Name: "Campus"},
		Destination:    domain.GeoPoint{Name: "Centro"},
		DepartureTime:  time.Now().Add(time.Hour),
		AvailableSeats: 2,
		PricePerSeat:   5,
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tripRepo.GetTrip(trip.ID).Status == domain.TripStatusExpired {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("trip never expired, status = %s", tripRepo.GetTrip(trip.ID).Status)
}
