package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/apollo-api/internal/errors"
	"github.com/yukikurage/apollo-api/internal/services"
	"github.com/yukikurage/apollo-api/internal/utils"
)

// respondError maps service errors to API responses.
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		apierrors.BadRequest(c, verr.Message)
		return
	}

	switch {
	case errors.Is(err, services.ErrParametersRequired),
		errors.Is(err, services.ErrEmailRequired),
		errors.Is(err, services.ErrUsernameRequired),
		errors.Is(err, services.ErrOldPasswordRequired),
		errors.Is(err, services.ErrResetCodeRequired),
		errors.Is(err, services.ErrSignUpCodeRequired),
		errors.Is(err, services.ErrRefreshIDRequired),
		errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrUsernameTaken),
		errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidPassword),
		errors.Is(err, services.ErrInvalidCode),
		errors.Is(err, services.ErrRefreshTokenExpired),
		errors.Is(err, services.ErrInvalidTimeZone),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrPostNotFound),
		errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrSearchQueryRequired):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrUnauthorizedAccess):
		apierrors.Unauthorized(c, err.Error())
	case errors.Is(err, services.ErrStorageUnavailable):
		apierrors.ServiceUnavailable(c, err.Error())
	default:
		_ = c.Error(err)
		apierrors.InternalError(c, err.Error())
	}
}

// bindJSON binds the request body and answers 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		apierrors.BadRequest(c, utils.ValidationMessage(err))
		return false
	}
	return true
}
