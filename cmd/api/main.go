package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mr-relay/internal/config"
	apihttp "mr-relay/internal/http"
	"mr-relay/internal/llm"
	"mr-relay/internal/service"
	"mr-relay/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const rateLimitWindow = time.Minute

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	_, shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.AppEnv,
	}, logger)
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	llmClient := llm.NewHTTPClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.UpstreamTimeout, logger)
	relaySvc := service.NewRelayService(llmClient, logger, service.RelayOptions{
		ChatModel:            cfg.DefaultModel,
		RealtimeModel:        cfg.RealtimeModel,
		RealtimeVoice:        cfg.RealtimeVoice,
		RealtimeInstructions: cfg.RealtimeInstructions,
		TTSModel:             cfg.TTSModel,
		TTSVoice:             cfg.TTSVoice,
		STTModel:             cfg.STTModel,
		MaxAudioBytes:        cfg.MaxAudioBytes,
	})

	var (
		limiter     service.RateLimiter
		revocations service.TokenRevocationStore
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory rate limiter", zap.Error(err))
		} else {
			limiter = service.NewRedisRateLimiter(redisClient, rateLimitWindow, cfg.RateLimitPerMinute)
			revocations = service.NewRedisTokenRevocationStore(redisClient)
			logger.Info("rate limiter backed by redis", zap.String("addr", cfg.RedisAddr))
		}
		cancel()
	}
	if limiter == nil {
		memLimiter := service.NewMemoryRateLimiter(rateLimitWindow, cfg.RateLimitPerMinute)
		defer memLimiter.Stop()
		limiter = memLimiter
	}

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	if revocations != nil {
		jwtSvc.WithRevocationStore(revocations)
	}
	if !jwtSvc.Enabled() {
		logger.Info("client auth disabled (RELAY_JWT_SECRET not set)")
	}
	if len(cfg.AllowedOrigins) == 0 {
		logger.Warn("origin allow-list empty, accepting any origin")
	}

	relayHandler := apihttp.NewRelayHandler(logger, relaySvc, cfg.MaxJSONBytes)
	router := apihttp.NewRouter(logger, relayHandler, apihttp.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Limiter:        limiter,
		LimitWindow:    rateLimitWindow,
		JWT:            jwtSvc,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, "mr-relay"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.HTTPPort),
			zap.String("upstream", cfg.OpenAIBaseURL),
			zap.Int("rate_limit_per_minute", cfg.RateLimitPerMinute),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}
