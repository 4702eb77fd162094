package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (PETAL_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string   `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string   `usage:"PostgreSQL connection URL (PETAL_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper  string   `usage:"HMAC pepper for API key hashing (PETAL_API_KEY_PEPPER)" flag:"api-key-pepper"`
	ShippingRates []string `default:"standard=4.99,express=12.00" usage:"Shipping providers as provider=fee" flag:"shipping-rates"`
	RateLimit     RateLimitConfig
	Graceful      GracefulConfig
}

// RateLimitConfig throttles checkout requests per authenticated user, which
// bounds how fast a caller can probe coupon codes.
type RateLimitConfig struct {
	Max    int           `default:"60" usage:"Max checkout requests per window, 0 disables"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PETAL",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/petal/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set PETAL_DATABASE_URL or DATABASE_URL")
	}
	if c.APIKeyPepper == "" {
		return errors.New("api key pepper is required: set PETAL_API_KEY_PEPPER")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the PETAL_-prefixed ones.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
