package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/apollo-api/internal/dto"
	"github.com/yukikurage/apollo-api/internal/middleware"
	"github.com/yukikurage/apollo-api/internal/services"
)

// AuthHandler coordinates authentication-related HTTP handlers.
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Authorize grants early access to a purchaser's email.
func (h *AuthHandler) Authorize(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.authService.Authorize(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	setAccessToken(c, token)
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// Login authenticates a user and starts a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginInput
	if !bindJSON(c, &req) {
		return
	}

	_, session, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	setSession(c, session)
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// ResetPassword emails a password reset code.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// UpdatePassword changes a password with the old password or a reset code.
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	var req services.UpdatePasswordInput
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.authService.UpdatePassword(req)
	if err != nil {
		respondError(c, err)
		return
	}

	setSession(c, session)
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// CheckResetCode reports whether a reset code can still be used.
func (h *AuthHandler) CheckResetCode(c *gin.Context) {
	var req struct {
		ResetCode string `json:"resetCode"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.CheckResetCode(req.ResetCode); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// CompleteSignUp redeems a signup code and creates the account.
func (h *AuthHandler) CompleteSignUp(c *gin.Context) {
	var req services.CompleteSignUpInput
	if !bindJSON(c, &req) {
		return
	}

	user, session, err := h.authService.CompleteSignUp(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	setSession(c, session)
	c.JSON(http.StatusOK, dto.ToSignUpDTO(*user))
}

// CheckRefresh reports whether a refresh token is still valid and renews the
// access token when it is about to expire.
func (h *AuthHandler) CheckRefresh(c *gin.Context) {
	var req struct {
		RefreshTokenID string `json:"refreshTokenId"`
	}
	if !bindJSON(c, &req) {
		return
	}

	current, _ := middleware.BearerToken(c)
	result, err := h.authService.CheckRefresh(req.RefreshTokenID, current)
	if err != nil {
		respondError(c, err)
		return
	}

	if result.AccessToken != "" {
		setAccessToken(c, result.AccessToken)
	}
	c.JSON(http.StatusOK, dto.MessageDTO{Message: result.Valid})
}
