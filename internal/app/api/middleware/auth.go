package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/response"
)

const RoleAdmin = "admin"

// Claims are the bearer token claims issued by the account service.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.StandardClaims
}

// AuthMiddleware accepts HS256 bearer tokens signed with secret and stores the
// subject as "user_id" in gin.Context and the request context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if header == "" || raw == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorMsg(response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}
		claims := &Claims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorMsg(response.APIResponseCodeUnauthorized, "invalid token"))
			return
		}

		c.Set(logctx.KeyUserID, claims.Subject)
		c.Set("claims", claims)
		ctx := context.WithValue(c.Request.Context(), logctx.KeyUserID, claims.Subject)
		if l, ok := c.Get(logctx.KeyLogger); ok {
			if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
				lg = lg.With("user_id", claims.Subject)
				c.Set(logctx.KeyLogger, lg)
				ctx = logctx.WithLogger(ctx, lg)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims := ClaimsFrom(c); claims == nil || claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorMsg(response.APIResponseCodeDenied, ""))
			return
		}
		c.Next()
	}
}

func ClaimsFrom(c *gin.Context) *Claims {
	v, ok := c.Get("claims")
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

func UserID(c *gin.Context) string {
	return c.GetString(logctx.KeyUserID)
}
