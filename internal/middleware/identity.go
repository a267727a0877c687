package middleware

import (
	"net/http"
	"strings"

	"github.com/formpilot/deviceauth/internal/models"
	"github.com/formpilot/deviceauth/internal/services"

	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key holding the verified user snapshot.
const IdentityKey = "identity"

// RequireIdentity guards the approval endpoints. The host application that
// renders the approval page authenticates the human and forwards their
// identity as a bearer token signed with the shared secret.
func RequireIdentity(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_request",
				"error_description": "Bearer identity token required",
			})
			return
		}

		user, err := tokens.ValidateIdentity(
			c.Request.Context(),
			strings.TrimPrefix(authHeader, "Bearer "),
		)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "access_denied",
				"error_description": "Identity token is invalid or expired",
			})
			return
		}

		c.Set(IdentityKey, *user)
		c.Next()
	}
}

// IdentityFrom extracts the verified user stored by RequireIdentity.
func IdentityFrom(c *gin.Context) (models.User, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}
