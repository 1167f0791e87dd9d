package tests

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"campusride/internal/chat"
	"campusride/internal/service"
)

func TestJoinChatAccessControl(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	e.seedPassenger("passenger-2")
	trip := e.createTrip(t, "driver-1", 2)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")

	// Pending passenger has no chat access.
	if _, err := e.trips.RequestBooking(context.Background(), trip.ID, "passenger-2"); err != nil {
		t.Fatalf("RequestBooking: %v", err)
	}
	if _, err := e.chatSvc.JoinChat(context.Background(), trip.ID, "passenger-2"); !errors.Is(err, service.ErrNotChatParticipant) {
		t.Errorf("pending passenger err = %v, want ErrNotChatParticipant", err)
	}

	history, err := e.chatSvc.JoinChat(context.Background(), trip.ID, "passenger-1")
	if err != nil {
		t.Fatalf("JoinChat (confirmed): %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0 for a fresh chat", len(history))
	}

	if _, err := e.chatSvc.JoinChat(context.Background(), trip.ID, "driver-1"); err != nil {
		t.Errorf("JoinChat (driver): %v", err)
	}
}

func TestPostMessage(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")

	msg, err := e.chatSvc.PostMessage(context.Background(), trip.ID, "passenger-1", "  ¿Dónde nos encontramos?  ")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if msg.Message != "¿Dónde nos encontramos?" {
		t.Errorf("message = %q, want trimmed text", msg.Message)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("server-assigned id or timestamp missing")
	}
	if msg.IsDriver {
		t.Error("passenger message flagged as driver")
	}

	reply, err := e.chatSvc.PostMessage(context.Background(), trip.ID, "driver-1", "En la puerta 3")
	if err != nil {
		t.Fatalf("PostMessage (driver): %v", err)
	}
	if !reply.IsDriver {
		t.Error("driver message not flagged as driver")
	}

	history, err := e.chatSvc.History(context.Background(), trip.ID, "passenger-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].ID != msg.ID || history[1].ID != reply.ID {
		t.Error("history order does not match send order")
	}
}

func TestPostMessageValidation(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	trip := e.createTrip(t, "driver-1", 2)

	if _, err := e.chatSvc.PostMessage(context.Background(), trip.ID, "driver-1", "   "); !errors.Is(err, service.ErrInvalidMessage) {
		t.Errorf("blank err = %v, want ErrInvalidMessage", err)
	}

	long := strings.Repeat("a", chat.MaxMessageLength+1)
	if _, err := e.chatSvc.PostMessage(context.Background(), trip.ID, "driver-1", long); !errors.Is(err, service.ErrInvalidMessage) {
		t.Errorf("oversize err = %v, want ErrInvalidMessage", err)
	}

	exact := strings.Repeat("a", chat.MaxMessageLength)
	if _, err := e.chatSvc.PostMessage(context.Background(), trip.ID, "driver-1", exact); err != nil {
		t.Errorf("exact-length err = %v, want nil", err)
	}
}

func TestChatClosesWithTrip(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")

	if _, err := e.chatSvc.PostMessage(context.Background(), trip.ID, "passenger-1", "hola"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	if _, err := e.trips.StartTrip(context.Background(), trip.ID, "driver-1"); err != nil {
		t.Fatalf("StartTrip: %v", err)
	}
	if _, err := e.trips.CompleteTrip(context.Background(), trip.ID, "driver-1"); err != nil {
		t.Fatalf("CompleteTrip: %v", err)
	}

	if _, err := e.chatSvc.PostMessage(context.Background(), trip.ID, "passenger-1", "¿llegamos?"); !errors.Is(err, service.ErrTripNotActive) {
		t.Errorf("post after completion err = %v, want ErrTripNotActive", err)
	}
	if _, err := e.chatSvc.JoinChat(context.Background(), trip.ID, "passenger-1"); !errors.Is(err, service.ErrTripNotActive) {
		t.Errorf("join after completion err = %v, want ErrTripNotActive", err)
	}
}

func TestLeaveTripRevokesChatAccess(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")

	if _, err := e.chatSvc.PostMessage(context.Background(), trip.ID, "passenger-1", "me bajo"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if _, err := e.trips.LeaveTrip(context.Background(), trip.ID, "passenger-1"); err != nil {
		t.Fatalf("LeaveTrip: %v", err)
	}

	if _, err := e.chatSvc.PostMessage(context.Background(), trip.ID, "passenger-1", "¿sigo?"); !errors.Is(err, service.ErrNotChatParticipant) {
		t.Errorf("err = %v, want ErrNotChatParticipant", err)
	}

	// Prior messages stay in the log for the remaining participants.
	history, err := e.chatSvc.History(context.Background(), trip.ID, "driver-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}
}

// TestChatSessionRebuiltFromRoster simulates a process restart: a fresh
// registry is rebuilt from the trip's confirmed roster on the next join.
func TestChatSessionRebuiltFromRoster(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")

	fresh := chat.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifications := service.NewNotificationService(nil, NewMockTokenStore(), logger)
	svc := service.NewChatService(e.tripRepo, e.userRepo, fresh, notifications, nil, logger)

	history, err := svc.JoinChat(context.Background(), trip.ID, "passenger-1")
	if err != nil {
		t.Fatalf("JoinChat after restart: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0 after restart", len(history))
	}
	if !fresh.IsParticipant(trip.ID, "driver-1") {
		t.Error("driver missing from rebuilt session")
	}
}

func TestConcurrentPostsKeepSingleOrder(t *testing.T) {
	t.Parallel()

	const posts = 20

	e := newEnv(t)
	e.seedDriver("driver-1")
	e.seedPassenger("passenger-1")
	trip := e.createTrip(t, "driver-1", 2)
	e.bookAndConfirm(t, trip.ID, "driver-1", "passenger-1")

	var wg sync.WaitGroup
	for i := 0; i < posts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "driver-1"
			if i%2 == 0 {
				sender = "passenger-1"
			}
			if _, err := e.chatSvc.PostMessage(context.Background(), trip.ID, sender, fmt.Sprintf("mensaje %d", i)); err != nil {
				t.Errorf("PostMessage(%d): %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	history, err := e.chatSvc.History(context.Background(), trip.ID, "driver-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != posts {
		t.Fatalf("history length = %d, want %d", len(history), posts)
	}

	seen := make(map[string]struct{}, posts)
	for i, msg := range history {
		if _, dup := seen[msg.ID]; dup {
			t.Fatalf("duplicate message id %s", msg.ID)
		}
		seen[msg.ID] = struct{}{}
		if i > 0 && msg.Timestamp.Before(history[i-1].Timestamp) {
			t.Fatalf("timestamps out of order at index %d", i)
		}
	}
}
