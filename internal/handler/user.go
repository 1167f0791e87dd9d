package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/domain"
	"campusride/internal/middleware"
	"campusride/internal/service"
)

// UserHandler handles HTTP requests for user profiles and device tokens.
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserResponse is the HTTP response for profile reads.
type UserResponse struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	University     string `json:"university"`
	ProfilePhoto   string `json:"profile_photo,omitempty"`
	Role           string `json:"role"`
	DriverApproval string `json:"driver_approval,omitempty"`
}

// PushTokenRequest is the body of PUT /v1/users/me/push-token.
type PushTokenRequest struct {
	Token string `json:"token"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		University:     u.University,
		ProfilePhoto:   u.ProfilePhoto,
		Role:           string(u.Role),
		DriverApproval: string(u.DriverApproval),
	}
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.userService.GetProfile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toUserResponse(user))
}

// RegisterPushToken handles PUT /v1/users/me/push-token
func (h *UserHandler) RegisterPushToken(c *gin.Context) {
	var req PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrMissingFields)
		return
	}

	if err := h.userService.RegisterPushToken(c.Request.Context(), middleware.UserID(c), req.Token); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
