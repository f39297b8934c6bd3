package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del relay.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort string `env:"PORT" envDefault:"8787"`

	OpenAIAPIKey    string        `env:"OPENAI_API_KEY,required,notEmpty"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`

	DefaultModel         string `env:"DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	RealtimeModel        string `env:"REALTIME_MODEL" envDefault:"gpt-4o-realtime-preview"`
	RealtimeVoice        string `env:"REALTIME_VOICE"`
	RealtimeInstructions string `env:"REALTIME_INSTRUCTIONS"`
	TTSModel             string `env:"TTS_MODEL" envDefault:"gpt-4o-mini-tts"`
	TTSVoice             string `env:"TTS_VOICE" envDefault:"verse"`
	STTModel             string `env:"STT_MODEL" envDefault:"gpt-4o-transcribe"`

	AllowedOrigins     []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies     []string `env:"TRUSTED_PROXIES" envSeparator:","`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	MaxJSONBytes       int64    `env:"MAX_JSON_BYTES" envDefault:"2097152"`
	MaxAudioBytes      int64    `env:"MAX_AUDIO_BYTES" envDefault:"20971520"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret     string `env:"RELAY_JWT_SECRET"`
	JWTTTLMinutes int    `env:"RELAY_JWT_TTL_MINUTES" envDefault:"43200"`

	// Sin endpoint no se exportan trazas.
	OTelEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"mr-relay"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins)
	proxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	cfg.TrustedProxies = proxies
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 120
	}
	return &cfg, nil
}

// IsDevelopment indica si se debe usar el logger de desarrollo.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// parseTrustedProxies acepta IPs o CIDRs; cualquier entrada inválida es un error.
func parseTrustedProxies(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid CIDR %q", p)
			}
		} else if net.ParseIP(p) == nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid IP %q", p)
		}
		out = append(out, p)
	}
	return out, nil
}
