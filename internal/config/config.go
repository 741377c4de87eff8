package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration for the gateway. Values are loaded
// from the environment (optionally pre-populated from a .env file) and
// validated before the server starts.
type Config struct {
	Env            string `envconfig:"ENV" default:"DEV"`
	Port           string `envconfig:"PORT" default:"8080"`
	AppName        string `envconfig:"APP_NAME" default:"Geo Gateway"`
	BaseURL        string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	Auth struct {
		JWTSecret          string        `envconfig:"AUTH_JWT_SECRET" required:"true"`
		Issuer             string        `envconfig:"AUTH_ISSUER" default:"com.agrisense.geogateway"`
		Audience           string        `envconfig:"AUTH_AUDIENCE" default:"dashboard"`
		AccessTokenExpiry  time.Duration `envconfig:"AUTH_ACCESS_TOKEN_EXPIRY" default:"1h"`
		RefreshTokenExpiry time.Duration `envconfig:"AUTH_REFRESH_TOKEN_EXPIRY" default:"720h"`
		RefreshTimeout     time.Duration `envconfig:"AUTH_REFRESH_TIMEOUT" default:"10s"`
	}

	DataAPI struct {
		BaseURL        string        `envconfig:"DATA_API_BASE_URL" default:"http://localhost:9000" validate:"url"`
		RequestTimeout time.Duration `envconfig:"DATA_API_REQUEST_TIMEOUT" default:"30s"`
	}

	Tiles struct {
		BaseURL        string        `envconfig:"TILE_SERVICE_BASE_URL" default:"https://tile.googleapis.com" validate:"url"`
		APIKey         string        `envconfig:"TILE_SERVICE_API_KEY"`
		MapType        string        `envconfig:"TILE_MAP_TYPE" default:"satellite"`
		Language       string        `envconfig:"TILE_LANGUAGE" default:"en-US"`
		Region         string        `envconfig:"TILE_REGION" default:"US"`
		RequestTimeout time.Duration `envconfig:"TILE_REQUEST_TIMEOUT" default:"10s"`
		StoreBackend   string        `envconfig:"TILE_STORE_BACKEND" default:"memory" validate:"oneof=memory badger"`
		StorePath      string        `envconfig:"TILE_STORE_PATH" default:"./data/tilesessions"`
	}

	Admin struct {
		Email    string `envconfig:"ADMIN_EMAIL" default:"admin@localhost"`
		Password string `envconfig:"ADMIN_PASSWORD"`
	}
}

// Load reads configuration from the environment. A missing .env file is not
// an error, environment variables alone are enough.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config from environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if len(c.Port) > 0 && c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}

// IsDev reports whether the gateway runs in the development environment.
func (c *Config) IsDev() bool {
	return c.Env == "DEV"
}
