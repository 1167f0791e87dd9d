package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campusride/internal/chat"
	"campusride/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationNewTripAvailable    NotificationType = "NEW_TRIP_AVAILABLE"
	NotificationNewBookingRequest   NotificationType = "NEW_BOOKING_REQUEST"
	NotificationBookingStatusUpdate NotificationType = "BOOKING_STATUS_UPDATE"
	NotificationTripStarted         NotificationType = "TRIP_STARTED"
	NotificationTripCancelled       NotificationType = "TRIP_CANCELLED"
	NotificationTripCompleted       NotificationType = "TRIP_COMPLETED"
	NotificationPassengerLeft       NotificationType = "PASSENGER_LEFT"
	NotificationPassengerInVehicle  NotificationType = "PASSENGER_IN_VEHICLE"
	NotificationChatMessage         NotificationType = "CHAT_MESSAGE"
)

// PushSender delivers one push message to a device token.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// TokenReader resolves a user's current device token.
type TokenReader interface {
	Get(ctx context.Context, userID string) (string, error)
}

// NotificationService handles push delivery. Every send is best-effort and
// asynchronous: failures are logged and never surface to the operation that
// triggered them.
type NotificationService struct {
	sender PushSender
	tokens TokenReader
	logger *slog.Logger
}

// NewNotificationService creates a new NotificationService. A nil sender or
// token reader degrades to log-only delivery.
func NewNotificationService(sender PushSender, tokens TokenReader, logger *slog.Logger) *NotificationService {
	return &NotificationService{sender: sender, tokens: tokens, logger: logger}
}

// NotifyNewTripAvailable fans out a new trip announcement to passengers.
func (s *NotificationService) NotifyNewTripAvailable(trip *domain.Trip, driver *domain.User, recipients []*domain.User) {
	title := "Nuevo Viaje Disponible"
	body := fmt.Sprintf("%s ofrece viaje de %s a %s por S/. %.2f",
		driver.FirstName, trip.Origin.Name, trip.Destination.Name, trip.PricePerSeat)
	data := map[string]string{
		"tripId":      trip.ID,
		"type":        string(NotificationNewTripAvailable),
		"origin":      trip.Origin.Name,
		"destination": trip.Destination.Name,
		"price":       fmt.Sprintf("%.2f", trip.PricePerSeat),
		"driverName":  driver.FirstName,
	}

	for _, u := range recipients {
		s.send(u.ID, title, body, data)
	}
}

// NotifyNewBookingRequest tells the driver a passenger wants a seat.
func (s *NotificationService) NotifyNewBookingRequest(trip *domain.Trip, passenger *domain.User, resubmitted bool) {
	body := fmt.Sprintf("%s quiere unirse a tu viaje a %s.", passenger.FirstName, trip.Destination.Name)
	if resubmitted {
		body = fmt.Sprintf("%s volvió a solicitar unirse a tu viaje a %s.", passenger.FirstName, trip.Destination.Name)
	}

	s.send(trip.DriverID, "Nueva Solicitud de Viaje", body, map[string]string{
		"tripId": trip.ID,
		"type":   string(NotificationNewBookingRequest),
	})
}

// NotifyBookingDecision tells the passenger their request was decided.
func (s *NotificationService) NotifyBookingDecision(trip *domain.Trip, passengerID string, decision domain.PassengerStatus) {
	body := fmt.Sprintf("Tu solicitud para el viaje a %s ha sido rechazada.", trip.Destination.Name)
	if decision == domain.PassengerStatusConfirmed {
		body = fmt.Sprintf("¡Tu solicitud para el viaje a %s ha sido aceptada!", trip.Destination.Name)
	}

	s.send(passengerID, "Solicitud Actualizada", body, map[string]string{
		"tripId": trip.ID,
		"type":   string(NotificationBookingStatusUpdate),
		"status": string(decision),
	})
}

// NotifyTripStarted tells every confirmed passenger the trip is underway.
func (s *NotificationService) NotifyTripStarted(trip *domain.Trip, driver *domain.User) {
	body := fmt.Sprintf("%s ha iniciado el viaje a %s", driver.FirstName, trip.Destination.Name)
	data := map[string]string{"tripId": trip.ID, "type": string(NotificationTripStarted)}

	for _, p := range trip.ConfirmedPassengers() {
		s.send(p.UserID, "Viaje Iniciado", body, data)
	}
}

// NotifyTripCancelled tells pending and confirmed passengers, with the reason.
func (s *NotificationService) NotifyTripCancelled(trip *domain.Trip, reason string) {
	body := fmt.Sprintf("El viaje a %s ha sido cancelado por el conductor", trip.Destination.Name)
	if reason != "" {
		body += ". Motivo: " + reason
	}
	data := map[string]string{"tripId": trip.ID, "type": string(NotificationTripCancelled)}

	for _, p := range trip.Passengers {
		if p.Status == domain.PassengerStatusPending || p.Status == domain.PassengerStatusConfirmed {
			s.send(p.UserID, "Viaje Cancelado", body, data)
		}
	}
}

// NotifyTripCompleted tells every confirmed passenger the trip finished.
func (s *NotificationService) NotifyTripCompleted(trip *domain.Trip, driver *domain.User) {
	body := fmt.Sprintf("%s ha completado el viaje a %s. ¡Gracias por viajar con nosotros!",
		driver.FirstName, trip.Destination.Name)
	data := map[string]string{"tripId": trip.ID, "type": string(NotificationTripCompleted)}

	for _, p := range trip.ConfirmedPassengers() {
		s.send(p.UserID, "Viaje Completado", body, data)
	}
}

// NotifyPassengerLeft tells the driver a confirmed passenger dropped out.
func (s *NotificationService) NotifyPassengerLeft(trip *domain.Trip, passenger *domain.User) {
	body := fmt.Sprintf("%s ha cancelado su participación en el viaje a %s",
		passenger.FirstName, trip.Destination.Name)

	s.send(trip.DriverID, "Pasajero Canceló", body, map[string]string{
		"tripId": trip.ID,
		"type":   string(NotificationPassengerLeft),
	})
}

// NotifyPassengerInVehicle tells the driver a passenger confirmed boarding.
func (s *NotificationService) NotifyPassengerInVehicle(trip *domain.Trip, passenger *domain.User) {
	body := fmt.Sprintf("%s ha confirmado que está en el vehículo", passenger.FirstName)

	s.send(trip.DriverID, "Pasajero en el Vehículo", body, map[string]string{
		"tripId": trip.ID,
		"type":   string(NotificationPassengerInVehicle),
	})
}

// NotifyChatMessage pushes a chat message preview to every participant
// except the sender.
func (s *NotificationService) NotifyChatMessage(msg *chat.Message, participants []string) {
	title := msg.UserName
	if msg.IsDriver {
		title = msg.UserName + " (Conductor)"
	}
	body := msg.Message
	if len(body) > 50 {
		body = body[:50] + "..."
	}
	data := map[string]string{
		"tripId":     msg.TripID,
		"type":       string(NotificationChatMessage),
		"messageId":  msg.ID,
		"senderName": msg.UserName,
		"senderId":   msg.UserID,
	}

	for _, id := range participants {
		if id == msg.UserID {
			continue
		}
		s.send(id, title, body, data)
	}
}

// send delivers one notification asynchronously. Failures never propagate.
func (s *NotificationService) send(userID, title, body string, data map[string]string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if s.sender == nil || s.tokens == nil {
			s.logger.Info("notification",
				"recipient", userID, "title", title, "body", body, "type", data["type"])
			return
		}

		token, err := s.tokens.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("push token lookup failed", "recipient", userID, "error", err)
			return
		}
		if token == "" {
			s.logger.Debug("no push token registered", "recipient", userID)
			return
		}

		if err := s.sender.Send(ctx, token, title, body, data); err != nil {
			s.logger.Warn("push delivery failed", "recipient", userID, "error", err)
		}
	}()
}
