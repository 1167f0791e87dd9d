// Package chat holds the in-memory, per-trip chat state. Sessions live for
// the process lifetime only; losing history on restart is an accepted
// tradeoff for trips that resolve within minutes.
package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxMessageLength is the cap on a single chat message after trimming.
const MaxMessageLength = 500

// Message is one entry in a trip's append-only chat log.
type Message struct {
	ID        string    `json:"id"`
	TripID    string    `json:"trip_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserPhoto string    `json:"user_photo,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsDriver  bool      `json:"is_driver"`
}

// session is the chat state for one trip.
type session struct {
	mu           sync.Mutex
	messages     []Message
	participants map[string]struct{}
	createdAt    time.Time
	active       bool
}

// Registry owns every trip chat session. All access goes through it; there is
// no persistence behind it.
type Registry struct {
	mu    sync.RWMutex
	chats map[string]*session
}

// NewRegistry creates an empty chat registry.
func NewRegistry() *Registry {
	return &Registry{chats: make(map[string]*session)}
}

// Initialize creates the chat for a trip with the driver as sole participant.
// It is a no-op if the chat already exists.
func (r *Registry) Initialize(tripID, driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[tripID]; ok {
		return
	}
	r.chats[tripID] = &session{
		participants: map[string]struct{}{driverID: {}},
		createdAt:    time.Now(),
		active:       true,
	}
}

// AddParticipant adds a user to the trip chat. Returns false if the chat is
// absent or closed.
func (r *Registry) AddParticipant(tripID, userID string) bool {
	s := r.get(tripID)
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	s.participants[userID] = struct{}{}
	return true
}

// RemoveParticipant removes a user from the trip chat. The user's prior
// messages stay in the log. Returns false if the chat is absent.
func (r *Registry) RemoveParticipant(tripID, userID string) bool {
	s := r.get(tripID)
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, userID)
	return true
}

// IsParticipant reports whether the user belongs to an active trip chat.
func (r *Registry) IsParticipant(tripID, userID string) bool {
	s := r.get(tripID)
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	_, ok := s.participants[userID]
	return ok
}

// Append validates and appends a message, stamping its id and timestamp under
// the session lock so each trip's log has a single total order. Returns nil
// if the chat is closed, the sender is not a participant, or the text is
// empty or too long after trimming.
func (r *Registry) Append(tripID, userID, userName, userPhoto, text string, isDriver bool) *Message {
	s := r.get(tripID)
	if s == nil {
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" || len(text) > MaxMessageLength {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}
	if _, ok := s.participants[userID]; !ok {
		return nil
	}

	msg := Message{
		ID:        uuid.New().String(),
		TripID:    tripID,
		UserID:    userID,
		UserName:  userName,
		UserPhoto: userPhoto,
		Message:   text,
		Timestamp: time.Now(),
		IsDriver:  isDriver,
	}
	s.messages = append(s.messages, msg)
	return &msg
}

// History returns a copy of the trip's ordered message log, or nil if the
// chat is absent or closed.
func (r *Registry) History(tripID string) []Message {
	s := r.get(tripID)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}

	history := make([]Message, len(s.messages))
	copy(history, s.messages)
	return history
}

// Participants returns a snapshot of the active chat's participant ids.
func (r *Registry) Participants(tripID string) []string {
	s := r.get(tripID)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}

	ids := make([]string, 0, len(s.participants))
	for id := range s.participants {
		ids = append(ids, id)
	}
	return ids
}

// IsActive reports whether the trip chat exists and is open.
func (r *Registry) IsActive(tripID string) bool {
	s := r.get(tripID)
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close marks the chat inactive. The session stays as a tombstone so later
// joins and appends fail instead of re-creating the chat.
func (r *Registry) Close(tripID string) {
	s := r.get(tripID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// Delete removes the chat entirely. Explicit cleanup only; closing a chat
// does not delete it.
func (r *Registry) Delete(tripID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chats, tripID)
}

func (r *Registry) get(tripID string) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chats[tripID]
}
