package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/HarshTuring/docklens/internal/entity"
	"github.com/HarshTuring/docklens/internal/pkg/authclient"
)

const decisionKey = "auth_decision"

// Auth validates the bearer token against the external auth service and
// stores the per-request decision in the gin context. The decision is
// computed fresh every request, never cached: token state may change.
func Auth(client authclient.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				entity.ErrorResponse{Message: "authentication required"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		decision := client.Validate(c.Request.Context(), token)
		if !decision.Allowed {
			logrus.WithField("reason", decision.Reason).Warn("request rejected by auth")
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				entity.ErrorResponse{Message: "authorization failed: " + decision.Reason})
			return
		}

		c.Set(decisionKey, decision)
		c.Next()
	}
}

// Decision returns the auth decision stored by Auth. A missing decision
// is a denied one, so a handler mounted without the middleware stays
// closed by default.
func Decision(c *gin.Context) entity.AuthDecision {
	if v, ok := c.Get(decisionKey); ok {
		if d, ok := v.(entity.AuthDecision); ok {
			return d
		}
	}
	return entity.AuthDecision{Allowed: false, Reason: entity.ReasonDenied}
}
