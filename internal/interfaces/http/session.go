package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/harshangpate/hospital-crm/internal/application/service"
)

// Session headers set by the upstream gateway after authentication
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const sessionKey = "session"

func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(sessionKey, service.Session{
			ActorID: strings.TrimSpace(c.GetHeader(HeaderActorID)),
			Role:    strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
		})
		c.Next()
	}
}

// sessionFrom returns the request session; an empty actor is rejected by the services
func sessionFrom(c *gin.Context) service.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(service.Session); ok {
			return s
		}
	}
	return service.Session{}
}
