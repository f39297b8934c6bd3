package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// ClientConfig es la configuración de cmd/cli_chat. No necesita la clave del
// proveedor: solo habla con el relay.
type ClientConfig struct {
	RelayURL       string        `env:"RELAY_URL" envDefault:"http://localhost:8787"`
	RelayToken     string        `env:"RELAY_TOKEN"`
	RequestTimeout time.Duration `env:"RELAY_TIMEOUT" envDefault:"90s"`
	RealtimeURL    string        `env:"REALTIME_URL" envDefault:"wss://api.openai.com/v1/realtime"`
	RealtimeModel  string        `env:"REALTIME_MODEL" envDefault:"gpt-4o-realtime-preview"`
	SystemPrompt   string        `env:"SYSTEM_PROMPT" envDefault:"You are an MR assistant."`
	Voice          string        `env:"TTS_VOICE"`

	JWTSecret     string `env:"RELAY_JWT_SECRET"`
	JWTTTLMinutes int    `env:"RELAY_JWT_TTL_MINUTES" envDefault:"43200"`

	// Redis compartido con el relay; solo lo usa revoke-token.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.RelayURL = strings.TrimRight(strings.TrimSpace(cfg.RelayURL), "/")
	return &cfg, nil
}
