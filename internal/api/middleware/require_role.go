package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/veriview/internal/utils"
)

// Roles carried in the "role" context key. Operators may read storage usage
// and score history; only admins may delete recordings or clear the cache.
const (
	RoleUser     = "user"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

const roleKey = "role"

// Role returns the caller's role as set by JWTAuth or AdminToken.
func Role(c *gin.Context) string {
	v, _ := c.Get(roleKey)
	role, _ := v.(string)
	return strings.ToLower(strings.TrimSpace(role))
}

// RequireRole lets the request through when the caller holds one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	want := strings.Join(roles, " or ")
	return func(c *gin.Context) {
		role := Role(c)
		if role == "" || !slices.Contains(roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, apiError{
				Code:    utils.CodeForbidden,
				Message: "requires role " + want,
			})
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc { return RequireRole(RoleAdmin) }

// RequireOperator admits operators and admins.
func RequireOperator() gin.HandlerFunc { return RequireRole(RoleOperator, RoleAdmin) }
