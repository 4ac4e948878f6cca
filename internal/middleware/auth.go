package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/apollo-api/internal/auth"
	"github.com/yukikurage/apollo-api/internal/constants"
	apierrors "github.com/yukikurage/apollo-api/internal/errors"
)

// RequireAuth checks the bearer access token in the Authorization header
func RequireAuth(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			apierrors.Unauthenticated(c)
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			apierrors.InvalidToken(c)
			return
		}

		c.Set(constants.ContextKeyUserID, claims.UserID)
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(constants.HeaderAuthorization)
	if !strings.HasPrefix(header, constants.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, constants.BearerPrefix))
	return token, token != ""
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}

	switch v := userID.(type) {
	case uint64:
		return v, v != 0
	case uint:
		return uint64(v), v != 0
	default:
		return 0, false
	}
}
