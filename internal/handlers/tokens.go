package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/apollo-api/internal/constants"
	"github.com/yukikurage/apollo-api/internal/services"
)

func setAccessToken(c *gin.Context, token string) {
	c.Header(constants.HeaderAuthorization, constants.BearerPrefix+token)
}

func setSession(c *gin.Context, session *services.Session) {
	setAccessToken(c, session.AccessToken)
	c.Header(constants.HeaderRefreshTokenID, session.RefreshTokenID)
}
