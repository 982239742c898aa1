package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yoockh/veriview/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata"` // put {"role":"admin"} here
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Code: utils.CodeUnauthorized, Message: msg})
}

func bearer(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

// JWTAuth validates HS256 bearer tokens. Issuer and audience are checked
// only when set.
func JWTAuth(secret, issuer, audience string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{
				Code:    utils.CodeInternal,
				Message: "jwt secret is not set",
			})
			return
		}

		raw, ok := bearer(c)
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}

		claims := &tokenClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || tok == nil || !tok.Valid {
			unauthorized(c, "invalid token")
			return
		}

		if issuer != "" && claims.Issuer != issuer {
			unauthorized(c, "invalid token issuer")
			return
		}
		if audience != "" && !slices.Contains(claims.Audience, audience) {
			unauthorized(c, "invalid token audience")
			return
		}
		if claims.Subject == "" {
			unauthorized(c, "missing subject")
			return
		}

		role := RoleUser
		if v, ok := claims.AppMetadata["role"].(string); ok && v != "" {
			role = v
		}

		c.Set("user_id", claims.Subject)
		c.Set(roleKey, role)
		c.Next()
	}
}

// AdminToken accepts a static bearer token checked against a bcrypt hash and
// grants the admin role.
func AdminToken(hash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}
		if hash == "" || utils.CheckToken(hash, raw) != nil {
			unauthorized(c, "invalid token")
			return
		}
		c.Set("user_id", RoleAdmin)
		c.Set(roleKey, RoleAdmin)
		c.Next()
	}
}
