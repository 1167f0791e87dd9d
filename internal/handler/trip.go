package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/domain"
	"campusride/internal/middleware"
	"campusride/internal/service"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	tripService *service.TripService
	chatService *service.ChatService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService, chatService *service.ChatService) *TripHandler {
	return &TripHandler{tripService: tripService, chatService: chatService}
}

// GeoPointPayload is a named location in requests and responses.
type GeoPointPayload struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

// CreateTripRequest is the body of POST /v1/trips.
type CreateTripRequest struct {
	Origin         GeoPointPayload `json:"origin"`
	Destination    GeoPointPayload `json:"destination"`
	DepartureTime  time.Time       `json:"departure_time"`
	AvailableSeats int             `json:"available_seats"`
	PricePerSeat   float64         `json:"price_per_seat"`
	Description    string          `json:"description"`
}

// ManageBookingRequest is the body of PUT /v1/trips/:id/bookings/:passengerId.
type ManageBookingRequest struct {
	Status string `json:"status"`
}

// CancelTripRequest is the body of PUT /v1/trips/:id/cancel.
type CancelTripRequest struct {
	Reason string `json:"reason"`
}

// PassengerResponse is one booking entry in a trip response.
type PassengerResponse struct {
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	BookedAt  time.Time `json:"booked_at"`
	InVehicle bool      `json:"in_vehicle"`
}

// TripResponse is the HTTP response for trip operations.
type TripResponse struct {
	ID             string              `json:"id"`
	DriverID       string              `json:"driver_id"`
	Origin         GeoPointPayload     `json:"origin"`
	Destination    GeoPointPayload     `json:"destination"`
	DepartureTime  time.Time           `json:"departure_time"`
	AvailableSeats int                 `json:"available_seats"`
	SeatsBooked    int                 `json:"seats_booked"`
	PricePerSeat   float64             `json:"price_per_seat"`
	Description    string              `json:"description,omitempty"`
	Status         string              `json:"status"`
	Passengers     []PassengerResponse `json:"passengers"`
	CreatedAt      time.Time           `json:"created_at"`
	ExpiresAt      time.Time           `json:"expires_at"`
	CancelReason   string              `json:"cancel_reason,omitempty"`
}

func toTripResponse(t *domain.Trip) TripResponse {
	passengers := make([]PassengerResponse, 0, len(t.Passengers))
	for _, p := range t.Passengers {
		passengers = append(passengers, PassengerResponse{
			UserID:    p.UserID,
			Status:    string(p.Status),
			BookedAt:  p.BookedAt,
			InVehicle: p.InVehicle,
		})
	}

	return TripResponse{
		ID:             t.ID,
		DriverID:       t.DriverID,
		Origin:         GeoPointPayload(t.Origin),
		Destination:    GeoPointPayload(t.Destination),
		DepartureTime:  t.DepartureTime,
		AvailableSeats: t.AvailableSeats,
		SeatsBooked:    t.SeatsBooked,
		PricePerSeat:   t.PricePerSeat,
		Description:    t.Description,
		Status:         string(t.Status),
		Passengers:     passengers,
		CreatedAt:      t.CreatedAt,
		ExpiresAt:      t.ExpiresAt,
		CancelReason:   t.CancelReason,
	}
}

func toTripResponses(trips []*domain.Trip) []TripResponse {
	responses := make([]TripResponse, 0, len(trips))
	for _, t := range trips {
		responses = append(responses, toTripResponse(t))
	}
	return responses
}

// Create handles POST /v1/trips
func (h *TripHandler) Create(c *gin.Context) {
	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrMissingFields)
		return
	}

	trip, err := h.tripService.CreateTrip(c.Request.Context(), service.CreateTripRequest{
		DriverID:       middleware.UserID(c),
		Origin:         domain.GeoPoint(req.Origin),
		Destination:    domain.GeoPoint(req.Destination),
		DepartureTime:  req.DepartureTime,
		AvailableSeats: req.AvailableSeats,
		PricePerSeat:   req.PricePerSeat,
		Description:    req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toTripResponse(trip))
}

// GetAvailable handles GET /v1/trips
func (h *TripHandler) GetAvailable(c *gin.Context) {
	trips, err := h.tripService.GetAvailableTrips(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponses(trips))
}

// Get handles GET /v1/trips/:id
func (h *TripHandler) Get(c *gin.Context) {
	trip, err := h.tripService.GetTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// GetMyDriverTrips handles GET /v1/trips/my-driver-trips
func (h *TripHandler) GetMyDriverTrips(c *gin.Context) {
	trips, err := h.tripService.GetDriverTrips(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponses(trips))
}

// GetMyPassengerTrips handles GET /v1/trips/my-passenger-trips
func (h *TripHandler) GetMyPassengerTrips(c *gin.Context) {
	trips, err := h.tripService.GetPassengerTrips(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponses(trips))
}

// Book handles POST /v1/trips/:id/book
func (h *TripHandler) Book(c *gin.Context) {
	trip, err := h.tripService.RequestBooking(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// ManageBooking handles PUT /v1/trips/:id/bookings/:passengerId
func (h *TripHandler) ManageBooking(c *gin.Context) {
	var req ManageBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrInvalidDecision)
		return
	}

	trip, err := h.tripService.ManageBooking(c.Request.Context(), service.ManageBookingRequest{
		TripID:      c.Param("id"),
		PassengerID: c.Param("passengerId"),
		Decision:    domain.PassengerStatus(req.Status),
		ActorID:     middleware.UserID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// Start handles PUT /v1/trips/:id/start
func (h *TripHandler) Start(c *gin.Context) {
	trip, err := h.tripService.StartTrip(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// Cancel handles PUT /v1/trips/:id/cancel
func (h *TripHandler) Cancel(c *gin.Context) {
	var req CancelTripRequest
	_ = c.ShouldBindJSON(&req)

	trip, err := h.tripService.CancelTrip(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// Leave handles DELETE /v1/trips/:id/leave
func (h *TripHandler) Leave(c *gin.Context) {
	trip, err := h.tripService.LeaveTrip(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// Complete handles PUT /v1/trips/:id/complete
func (h *TripHandler) Complete(c *gin.Context) {
	trip, err := h.tripService.CompleteTrip(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// ConfirmInVehicle handles PUT /v1/trips/:id/confirm-in-vehicle
func (h *TripHandler) ConfirmInVehicle(c *gin.Context) {
	trip, err := h.tripService.ConfirmInVehicle(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// GetChatHistory handles GET /v1/trips/:id/chat
func (h *TripHandler) GetChatHistory(c *gin.Context) {
	history, err := h.chatService.History(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"trip_id": c.Param("id"), "messages": history})
}
