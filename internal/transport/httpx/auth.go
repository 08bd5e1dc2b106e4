package httpx

import (
	"net/http"

	"github.com/danmuck/remotectl/internal/auth"
	"github.com/danmuck/remotectl/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequireToken rejects requests whose bearer token v does not accept.
func RequireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ParseBearer(c.GetHeader("Authorization"))
		if err == nil {
			err = v.Validate(token)
		}
		if err != nil {
			observability.RecordReject("unauthorized")
			log.Warn().
				Err(err).
				Str("client", c.ClientIP()).
				Str("request_id", observability.RequestIDFrom(c)).
				Msg("chain request rejected")
			c.Header("WWW-Authenticate", `Bearer realm="remotectl"`)
			c.String(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			c.Abort()
			return
		}
		c.Next()
	}
}
