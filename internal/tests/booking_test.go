package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campusride/internal/domain"
	"campusride/internal/events"
	"campusride/internal/service"
)

func TestRequestBooking(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)

	updated, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-1")
	if err != nil {
		t.Fatalf("RequestBooking: %v", err)
	}

	entry := updated.FindPassenger("passenger-1")
	if entry == nil || entry.Status != domain.PassengerStatusPending {
		t.Fatalf("booking entry = %+v, want pending", entry)
	}
	if updated.SeatsBooked != 0 {
		t.Errorf("seats booked = %d, want 0 before approval", updated.SeatsBooked)
	}
	if got := e.broadcaster.EventsForUser("driver-1"); !containsEvent(got, events.BookingRequested) {
		t.Errorf("driver deliveries %v missing booking.requested", got)
	}
}

func TestRequestBookingRejectsSelfAndDuplicates(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)

	if _, err := e.trips.RequestBooking(context.Background(), trip.ID, "driver-1"); !errors.Is(err, service.ErrSelfBooking) {
		t.Errorf("self booking err = %v, want ErrSelfBooking", err)
	}

	if _, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-1"); err != nil {
		t.Fatalf("RequestBooking: %v", err)
	}
	if _, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-1"); !errors.Is(err, service.ErrBookingAlreadyPending) {
		t.Errorf("duplicate err = %v, want ErrBookingAlreadyPending", err)
	}

	e.bookConfirmDirect(t, trip.ID, "driver-1", "passenger-1")
	if _, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-1"); !errors.Is(err, service.ErrAlreadyConfirmed) {
		t.Errorf("confirmed err = %v, want ErrAlreadyConfirmed", err)
	}
}

// bookConfirmDirect approves an already pending request.
func (e *env) bookConfirmDirect(t *testing.T, tripID, driverID, passengerID string) {
	t.Helper()
	if _, err := e.trips.ManageBooking(context.Background(), service.ManageBookingRequest{
		TripID:      tripID,
		PassengerID: passengerID,
		Decision:    domain.PassengerStatusConfirmed,
		ActorID:     driverID,
	}); err != nil {
		t.Fatalf("ManageBooking(%s): %v", passengerID, err)
	}
}

func TestRequestBookingAfterExpiry(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)

	e.tripRepo.SetExpiresAt(trip.ID, time.Now().Add(-time.Minute))

	if _, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-1"); !errors.Is(err, service.ErrTripExpired) {
		t.Errorf("err = %v, want ErrTripExpired", err)
	}
}

func TestRejectedPassengerMayResubmit(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)

	if _, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-1"); err != nil {
		t.Fatalf("RequestBooking: %v", err)
	}
	if _, err := e.trips.ManageBooking(context.Background(), service.ManageBookingRequest{
		TripID:      trip.ID,
		PassengerID: "passenger-1",
		Decision:    domain.PassengerStatusRejected,
		ActorID:     "driver-1",
	}); err != nil {
		t.Fatalf("ManageBooking: %v", err)
	}

	updated, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-1")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if entry := updated.FindPassenger("passenger-1"); entry == nil || entry.Status != domain.PassengerStatusPending {
		t.Errorf("entry after resubmit = %+v, want pending", entry)
	}
	if updated.SeatsBooked != 0 {
		t.Errorf("seats booked = %d, want 0 after rejection", updated.SeatsBooked)
	}
}

func TestManageBookingConfirm(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	e.seedPassenger("passenger-2")
	trip := e.createTrip(t, "driver-1", 2)

	if _, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-1"); err != nil {
		t.Fatalf("RequestBooking: %v", err)
	}

	// Only the trip's driver decides.
	if _, err := e.trips.ManageBooking(context.Background(), service.ManageBookingRequest{
		TripID:      trip.ID,
		PassengerID: "passenger-1",
		Decision:    domain.PassengerStatusConfirmed,
		ActorID:     "passenger-2",
	}); !errors.Is(err, service.ErrNotTripDriver) {
		t.Errorf("err = %v, want ErrNotTripDriver", err)
	}

	updated, err := e.trips.ManageBooking(context.Background(), service.ManageBookingRequest{
		TripID:      trip.ID,
		PassengerID: "passenger-1",
		Decision:    domain.PassengerStatusConfirmed,
		ActorID:     "driver-1",
	})
	if err != nil {
		t.Fatalf("ManageBooking: %v", err)
	}
	if updated.SeatsBooked != 1 {
		t.Errorf("seats booked = %d, want 1", updated.SeatsBooked)
	}
	if updated.Status != domain.TripStatusWaiting {
		t.Errorf("status = %s, want waiting with a free seat left", updated.Status)
	}
	if !e.chats.IsParticipant(trip.ID, "passenger-1") {
		t.Error("confirmed passenger missing from chat")
	}

	// No pending entry left to decide.
	if _, err := e.trips.ManageBooking(context.Background(), service.ManageBookingRequest{
		TripID:      trip.ID,
		PassengerID: "passenger-1",
		Decision:    domain.PassengerStatusConfirmed,
		ActorID:     "driver-1",
	}); !errors.Is(err, service.ErrBookingNotFound) {
		t.Errorf("err = %v, want ErrBookingNotFound", err)
	}

	// Last seat flips the trip to full.
	if _, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-2"); err != nil {
		t.Fatalf("RequestBooking: %v", err)
	}
	e.bookConfirmDirect(t, trip.ID, "driver-1", "passenger-2")
	if got := e.tripRepo.GetTrip(trip.ID); got.Status != domain.TripStatusFull {
		t.Errorf("status = %s, want full", got.Status)
	}
}

func TestFullTripStillAcceptsRequests(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	e.seedPassenger("passenger-2")
	trip := e.createTrip(t, "driver-1", 1)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")

	if got := e.tripRepo.GetTrip(trip.ID); got.Status != domain.TripStatusFull {
		t.Fatalf("status = %s, want full", got.Status)
	}

	// A full trip keeps queueing requests; a seat may still free up.
	updated, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-2")
	if err != nil {
		t.Fatalf("RequestBooking on full trip: %v", err)
	}
	entry := updated.FindPassenger("passenger-2")
	if entry == nil || entry.Status != domain.PassengerStatusPending {
		t.Fatal("request on full trip not recorded as pending")
	}

	if _, err := e.trips.ManageBooking(context.Background(), service.ManageBookingRequest{
		TripID:      trip.ID,
		PassengerID: "passenger-2",
		Decision:    domain.PassengerStatusConfirmed,
		ActorID:     "driver-1",
	}); !errors.Is(err, service.ErrTripFull) {
		t.Errorf("err = %v, want ErrTripFull", err)
	}
}

func TestManageBookingInvalidDecision(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	trip := e.createTrip(t, "driver-1", 2)

	if _, err := e.trips.ManageBooking(context.Background(), service.ManageBookingRequest{
		TripID:      trip.ID,
		PassengerID: "passenger-1",
		Decision:    domain.PassengerStatus("maybe"),
		ActorID:     "driver-1",
	}); !errors.Is(err, service.ErrInvalidDecision) {
		t.Errorf("err = %v, want ErrInvalidDecision", err)
	}
}

func TestConcurrentConfirmsNeverOverbook(t *testing.T) {
	t.Parallel()

	const seats = 2
	const requests = 5

	e := newEnv(t)
	e.seedDriver("driver-1")
	trip := e.createTrip(t, "driver-1", seats)

	passengers := make([]string, requests)
	for i := range passengers {
		id := string(rune('a'+i)) + "-passenger"
		passengers[i] = id
		e.seedPassenger(id)
		if _, err := e.trips.RequestBooking(context.Background(), trip.ID, id); err != nil {
			t.Fatalf("RequestBooking(%s): %v", id, err)
		}
	}

	var wg sync.WaitGroup
	results := make([]error, requests)
	for i, id := range passengers {
		wg.Add(1)
		go func(i int, passengerID string) {
			defer wg.Done()
			_, err := e.trips.ManageBooking(context.Background(), service.ManageBookingRequest{
				TripID:      trip.ID,
				PassengerID: passengerID,
				Decision:    domain.PassengerStatusConfirmed,
				ActorID:     "driver-1",
			})
			results[i] = err
		}(i, id)
	}
	wg.Wait()

	confirmed, full := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			confirmed++
		case errors.Is(err, service.ErrTripFull):
			full++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if confirmed != seats {
		t.Errorf("confirmed = %d, want %d", confirmed, seats)
	}
	if full != requests-seats {
		t.Errorf("rejected as full = %d, want %d", full, requests-seats)
	}

	final := e.tripRepo.GetTrip(trip.ID)
	if final.SeatsBooked != seats {
		t.Errorf("seats booked = %d, want %d", final.SeatsBooked, seats)
	}
	if final.Status != domain.TripStatusFull {
		t.Errorf("status = %s, want full", final.Status)
	}
	if got := len(final.ConfirmedPassengers()); got != seats {
		t.Errorf("confirmed passengers = %d, want %d", got, seats)
	}
}

func TestLeaveTrip(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	e.seedPassenger("passenger-2")
	trip := e.createTrip(t, "driver-1", 1)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")

	if got := e.tripRepo.GetTrip(trip.ID); got.Status != domain.TripStatusFull {
		t.Fatalf("status = %s, want full before leave", got.Status)
	}

	// Only confirmed passengers can leave.
	if _, err := e.trips.LeaveTrip(context.Background(), trip.ID, "passenger-2"); !errors.Is(err, service.ErrPassengerNotConfirmed) {
		t.Errorf("err = %v, want ErrPassengerNotConfirmed", err)
	}

	updated, err := e.trips.LeaveTrip(context.Background(), trip.ID, "passenger-1")
	if err != nil {
		t.Fatalf("LeaveTrip: %v", err)
	}
	if updated.SeatsBooked != 0 {
		t.Errorf("seats booked = %d, want 0", updated.SeatsBooked)
	}
	if updated.Status != domain.TripStatusWaiting {
		t.Errorf("status = %s, want waiting after seat freed", updated.Status)
	}
	if updated.FindPassenger("passenger-1") != nil {
		t.Error("booking entry still present after leave")
	}
	if e.chats.IsParticipant(trip.ID, "passenger-1") {
		t.Error("passenger still in chat after leave")
	}
	if e.broadcaster.CountEvent(events.PassengerLeft) == 0 {
		t.Error("passenger.left was not broadcast")
	}
}

func TestLeaveTripAfterStart(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")
	if _, err := e.trips.StartTrip(context.Background(), trip.ID, "driver-1"); err != nil {
		t.Fatalf("StartTrip: %v", err)
	}

	if _, err := e.trips.LeaveTrip(context.Background(), trip.ID, "passenger-1"); !errors.Is(err, service.ErrTripNotOpen) {
		t.Errorf("err = %v, want ErrTripNotOpen", err)
	}
}
