package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/utils"
)

// UserSession is the cached identity a session token resolves to. The
// identity provider lives outside this service; sessions arrive pre-seeded
// in redis under "Session:<token>".
type UserSession struct {
	UserId       int    `json:"user_id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	LocationType string `json:"location_type"`
	LocationId   int    `json:"location_id"`
}

func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		var session UserSession
		exists, err := config.GetRedisObject("Session:"+token, &session)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		// Sliding expiry: an active session stays alive.
		_ = config.SetRedisObject("Session:"+token, session, utils.GetCacheLifespan())

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUsernameInContext(ctx, session.Username)
		ctx = utils.SetUserIdInContext(ctx, session.UserId)
		ctx = utils.SetUserNameInContext(ctx, session.Name)
		if session.LocationType != "" {
			ctx = utils.SetActorLocationInContext(ctx, session.LocationType, session.LocationId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
