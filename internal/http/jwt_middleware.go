package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mr-relay/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida tokens de cliente cuando la auth está habilitada.
// Con el servicio deshabilitado deja pasar todo.
func JWTAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return jwtAuthMiddleware(jwtSvc, nil, 0, zap.NewNop())
}

// jwtAuthMiddleware cuenta cada rechazo bajo la IP del cliente; superado el
// límite responde 429 en lugar de 401.
func jwtAuthMiddleware(jwtSvc *service.JWTService, failures service.RateLimiter, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	retryAfter := retryAfterSeconds(window)
	reject := func(c *gin.Context, msg string) {
		if failures != nil {
			key := "authfail:ip:" + c.ClientIP()
			if !failures.Allow(key) {
				logger.Warn("auth failures rate limited", zap.String("client", key), zap.String("path", c.Request.URL.Path))
				c.Header("Retry-After", retryAfter)
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
	}

	return func(c *gin.Context) {
		if !jwtSvc.Enabled() {
			c.Next()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			reject(c, "missing token")
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			msg := "invalid token"
			switch {
			case errors.Is(err, service.ErrJWTExpired):
				msg = "token expired"
			case errors.Is(err, service.ErrJWTRevoked):
				msg = "token revoked"
			}
			reject(c, msg)
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
