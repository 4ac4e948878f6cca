package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/apollo-api/internal/dto"
	apierrors "github.com/yukikurage/apollo-api/internal/errors"
	"github.com/yukikurage/apollo-api/internal/middleware"
	"github.com/yukikurage/apollo-api/internal/services"
)

// UserHandler handles account, streak and subscription requests.
type UserHandler struct {
	authService *services.AuthService
	userService *services.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(authService *services.AuthService, userService *services.UserService) *UserHandler {
	return &UserHandler{
		authService: authService,
		userService: userService,
	}
}

// RequestSignUp validates a new account and emails a signup code.
func (h *UserHandler) RequestSignUp(c *gin.Context) {
	var req services.SignUpInput
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.RequestSignUp(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// GetMe returns the authenticated user.
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	user, err := h.userService.GetUser(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

// SetProfileImage stores the profile image descriptor.
func (h *UserHandler) SetProfileImage(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	var req struct {
		ProfileImageObj string `json:"profileImageObj"`
	}
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.SetProfileImage(userID, req.ProfileImageObj)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profileImageObj": user.ProfileImageObj})
}

// ProfileImageUploadURL returns a presigned upload target.
func (h *UserHandler) ProfileImageUploadURL(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	upload, err := h.userService.ProfileImageUploadURL(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": upload.Key, "url": upload.URL})
}

// UpdateUsername renames the authenticated user.
func (h *UserHandler) UpdateUsername(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	var req services.UpdateUsernameInput
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.userService.UpdateUsername(userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	setAccessToken(c, token)
	c.JSON(http.StatusOK, dto.UsernameDTO{ID: user.ID, Username: user.Username})
}

// CheckUsername reports whether a username is free.
func (h *UserHandler) CheckUsername(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userService.CheckUsername(req.Username); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// CheckEmail reports whether an email is free.
func (h *UserHandler) CheckEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userService.CheckEmail(req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// LoginStreak records today's check-in and returns the streak.
func (h *UserHandler) LoginStreak(c *gin.Context) {
	var req struct {
		RefreshTokenID string `json:"refreshTokenId"`
		TimeZone       string `json:"timeZone"`
	}
	if !bindJSON(c, &req) {
		return
	}

	streak, token, err := h.userService.RecordLogin(req.RefreshTokenID, req.TimeZone)
	if err != nil {
		if errors.Is(err, services.ErrRefreshTokenNotFound) {
			c.JSON(http.StatusOK, dto.MessageDTO{Message: false})
			return
		}
		respondError(c, err)
		return
	}

	setAccessToken(c, token)
	c.JSON(http.StatusOK, streak)
}

// SubscriptionStatus refreshes and returns the subscription state.
func (h *UserHandler) SubscriptionStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	status, token, err := h.userService.RefreshSubscription(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	setAccessToken(c, token)
	c.JSON(http.StatusOK, status)
}

// SubscriptionDetails returns the plan and billing dates.
func (h *UserHandler) SubscriptionDetails(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	details, token, err := h.userService.SubscriptionDetails(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	setAccessToken(c, token)
	c.JSON(http.StatusOK, details)
}

type subscriptionRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

// ContinueSubscription removes a scheduled cancellation.
func (h *UserHandler) ContinueSubscription(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	var req subscriptionRequest
	if !bindJSON(c, &req) {
		return
	}

	h.userService.ContinueSubscription(c.Request.Context(), userID, req.SubscriptionID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CancelSubscription cancels at the end of the billing period.
func (h *UserHandler) CancelSubscription(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	var req subscriptionRequest
	if !bindJSON(c, &req) {
		return
	}

	h.userService.CancelSubscription(c.Request.Context(), userID, req.SubscriptionID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreatePromoCode creates a single-use promotion code.
func (h *UserHandler) CreatePromoCode(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	code, err := h.userService.CreatePromoCode(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}
