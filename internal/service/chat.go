package service

import (
	"context"
	"log/slog"
	"strings"

	"campusride/internal/chat"
	"campusride/internal/domain"
	"campusride/internal/events"
	"campusride/internal/observability"
	"campusride/internal/repository"
)

// ChatService guards access to trip chats. The registry holds the state;
// this layer decides who may read and post, based on the trip's current
// booking roster.
type ChatService struct {
	tripRepo      repository.TripRepository
	userRepo      repository.UserRepository
	chats         *chat.Registry
	notifications *NotificationService
	events        EventPublisher
	logger        *slog.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(
	tripRepo repository.TripRepository,
	userRepo repository.UserRepository,
	chats *chat.Registry,
	notifications *NotificationService,
	events EventPublisher,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		tripRepo:      tripRepo,
		userRepo:      userRepo,
		chats:         chats,
		notifications: notifications,
		events:        events,
		logger:        logger,
	}
}

// JoinChat admits the user to the trip chat and returns the message history.
// Only the driver and confirmed passengers may join, and only while the trip
// is not in a terminal status.
func (s *ChatService) JoinChat(ctx context.Context, tripID, userID string) ([]chat.Message, error) {
	trip, err := s.authorize(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}

	s.ensureSession(trip)
	if !s.chats.AddParticipant(tripID, userID) {
		return nil, ErrChatClosed
	}

	history := s.chats.History(tripID)
	if history == nil {
		history = []chat.Message{}
	}
	return history, nil
}

// PostMessage validates, stores and fans out one chat message. The returned
// message carries the server-assigned id and timestamp.
func (s *ChatService) PostMessage(ctx context.Context, tripID, userID, text string) (*chat.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || len(trimmed) > chat.MaxMessageLength {
		return nil, ErrInvalidMessage
	}

	trip, err := s.authorize(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}

	s.ensureSession(trip)
	if !s.chats.IsParticipant(tripID, userID) {
		return nil, ErrNotChatParticipant
	}

	sender, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg := s.chats.Append(tripID, userID, sender.FirstName, sender.ProfilePhoto, trimmed, userID == trip.DriverID)
	if msg == nil {
		return nil, ErrChatClosed
	}

	observability.ChatMessagesTotal.Inc()
	s.notifications.NotifyChatMessage(msg, s.chats.Participants(tripID))
	if s.events != nil {
		s.events.Publish(events.ChatMessage, tripID, map[string]any{
			"message_id": msg.ID,
			"user_id":    msg.UserID,
		})
	}

	return msg, nil
}

// History returns the trip's chat log for an authorized user without joining.
func (s *ChatService) History(ctx context.Context, tripID, userID string) ([]chat.Message, error) {
	trip, err := s.authorize(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}

	s.ensureSession(trip)
	history := s.chats.History(tripID)
	if history == nil {
		return nil, ErrChatClosed
	}
	return history, nil
}

// authorize loads the trip and checks chat rights: the driver or a confirmed
// passenger, on a trip that is still live.
func (s *ChatService) authorize(ctx context.Context, tripID, userID string) (*domain.Trip, error) {
	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.IsTerminal() {
		return nil, ErrTripNotActive
	}
	if userID != trip.DriverID && !trip.IsConfirmedPassenger(userID) {
		return nil, ErrNotChatParticipant
	}
	return trip, nil
}

// ensureSession rebuilds the chat session from the trip roster. The registry
// is in-memory, so after a restart the session for a live trip is gone; the
// trip record is the source of truth for who belongs in it.
func (s *ChatService) ensureSession(trip *domain.Trip) {
	if s.chats.IsActive(trip.ID) {
		return
	}

	// No-op when a closed session still exists; participation checks will
	// reject against it.
	s.chats.Initialize(trip.ID, trip.DriverID)
	for _, p := range trip.ConfirmedPassengers() {
		s.chats.AddParticipant(trip.ID, p.UserID)
	}
}
