package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mr-relay/internal/service"
)

// RouterOptions agrupa la política de admisión del relay.
type RouterOptions struct {
	AllowedOrigins []string
	TrustedProxies []string
	Limiter        service.RateLimiter
	LimitWindow    time.Duration
	JWT            *service.JWTService
}

// NewRouter configura el router de Gin con middlewares y rutas del relay.
func NewRouter(logger *zap.Logger, relayH *RelayHandler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	// sin proxies confiables ClientIP ignora X-Forwarded-For
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies, ignoring forwarded headers", zap.Strings("proxies", opts.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	if opts.LimitWindow <= 0 {
		opts.LimitWindow = time.Minute
	}

	// Middlewares basicos: request id, headers de seguridad, logging, recovery y allow-list de origen.
	r.Use(requestIDMiddleware(), securityHeadersMiddleware(), zapLoggerMiddleware(logger), gin.Recovery(), originMiddleware(opts.AllowedOrigins))

	r.GET("/health", relayH.Health)

	relay := r.Group("")
	relay.Use(
		jwtAuthMiddleware(opts.JWT, opts.Limiter, opts.LimitWindow, logger),
		rateLimitMiddleware(opts.Limiter, opts.LimitWindow, logger),
	)
	relay.POST("/chat", relayH.Chat)
	relay.GET("/session", relayH.Session)
	relay.POST("/tts", relayH.TTS)
	relay.POST("/stt", relayH.STT)

	return r
}
