package chat

import (
	"strings"
	"sync"
	"testing"
)

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Initialize("trip-1", "driver-1")

	if !r.IsActive("trip-1") {
		t.Fatal("chat not active after Initialize")
	}
	if !r.IsParticipant("trip-1", "driver-1") {
		t.Error("driver not a participant")
	}

	// Re-initializing is a no-op.
	r.AddParticipant("trip-1", "passenger-1")
	r.Initialize("trip-1", "driver-1")
	if !r.IsParticipant("trip-1", "passenger-1") {
		t.Error("re-initialize dropped a participant")
	}

	r.Close("trip-1")
	if r.IsActive("trip-1") {
		t.Error("chat still active after Close")
	}
	if r.AddParticipant("trip-1", "passenger-2") {
		t.Error("joined a closed chat")
	}
	if r.Append("trip-1", "driver-1", "Carlos", "", "hola", true) != nil {
		t.Error("appended to a closed chat")
	}
}

func TestRegistryDeleteAllowsReinitialize(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Initialize("trip-1", "driver-1")
	r.Close("trip-1")

	// Close leaves a tombstone: Initialize is still a no-op.
	r.Initialize("trip-1", "driver-1")
	if r.IsActive("trip-1") {
		t.Fatal("closed chat reopened by Initialize")
	}

	r.Delete("trip-1")
	if r.History("trip-1") != nil {
		t.Error("history survived Delete")
	}

	r.Initialize("trip-1", "driver-1")
	if !r.IsActive("trip-1") {
		t.Error("chat not active after Delete + Initialize")
	}
}

func TestRegistryAppend(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Initialize("trip-1", "driver-1")
	r.AddParticipant("trip-1", "passenger-1")

	if r.Append("trip-1", "stranger", "X", "", "hola", false) != nil {
		t.Error("non-participant appended a message")
	}
	if r.Append("trip-1", "passenger-1", "Ana", "", "   ", false) != nil {
		t.Error("blank message accepted")
	}
	if r.Append("trip-1", "passenger-1", "Ana", "", strings.Repeat("x", MaxMessageLength+1), false) != nil {
		t.Error("oversize message accepted")
	}

	msg := r.Append("trip-1", "passenger-1", "Ana", "", "  hola  ", false)
	if msg == nil {
		t.Fatal("valid message rejected")
	}
	if msg.Message != "hola" {
		t.Errorf("message = %q, want trimmed", msg.Message)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("id or timestamp not stamped")
	}
}

func TestRegistryRemoveKeepsMessages(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Initialize("trip-1", "driver-1")
	r.AddParticipant("trip-1", "passenger-1")
	r.Append("trip-1", "passenger-1", "Ana", "", "hola", false)

	r.RemoveParticipant("trip-1", "passenger-1")
	if r.IsParticipant("trip-1", "passenger-1") {
		t.Error("participant still present after removal")
	}
	if got := len(r.History("trip-1")); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}

func TestRegistryHistoryIsACopy(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Initialize("trip-1", "driver-1")
	r.Append("trip-1", "driver-1", "Carlos", "", "uno", true)

	history := r.History("trip-1")
	history[0].Message = "mutated"

	if got := r.History("trip-1")[0].Message; got != "uno" {
		t.Errorf("stored message = %q, caller mutated shared state", got)
	}
}

func TestRegistryConcurrentAppendsStaySequenced(t *testing.T) {
	t.Parallel()

	const writers = 8
	const perWriter = 25

	r := NewRegistry()
	r.Initialize("trip-1", "driver-1")
	for i := 0; i < writers; i++ {
		r.AddParticipant("trip-1", userID(i))
	}

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if r.Append("trip-1", id, "U", "", "m", false) == nil {
					t.Errorf("append failed for %s", id)
					return
				}
			}
		}(userID(i))
	}
	wg.Wait()

	history := r.History("trip-1")
	if len(history) != writers*perWriter {
		t.Fatalf("history length = %d, want %d", len(history), writers*perWriter)
	}

	seen := make(map[string]struct{}, len(history))
	for i, msg := range history {
		if _, dup := seen[msg.ID]; dup {
			t.Fatalf("duplicate id at %d", i)
		}
		seen[msg.ID] = struct{}{}
		if i > 0 && msg.Timestamp.Before(history[i-1].Timestamp) {
			t.Fatalf("timestamps regress at %d", i)
		}
	}
}

func userID(i int) string {
	return string(rune('a'+i)) + "-user"
}
