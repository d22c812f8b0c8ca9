package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Tiles     Tiles     `envPrefix:"TILES_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Offline   Offline   `envPrefix:"OFFLINE_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
	}

	HTTP struct {
		Server Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}

	Tiles struct {
		Provider               string        `env:"PROVIDER" envDefault:"osm"`
		Style                  string        `env:"STYLE" envDefault:"streets"`
		TileSize               int           `env:"TILE_SIZE" envDefault:"256"`
		MinZoom                int           `env:"MIN_ZOOM" envDefault:"0"`
		MaxZoom                int           `env:"MAX_ZOOM" envDefault:"19"`
		CacheMaxTiles          int           `env:"CACHE_MAX_TILES" envDefault:"512"`
		CacheExpiry            time.Duration `env:"CACHE_EXPIRY" envDefault:"30m"`
		RequestTimeout         time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
		RetryAttempts          int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
		RetryDelay             time.Duration `env:"RETRY_DELAY" envDefault:"1s"`
		MaxConcurrentDownloads int           `env:"MAX_CONCURRENT_DOWNLOADS" envDefault:"4"`
		UserAgent              string        `env:"USER_AGENT" envDefault:"geoclash-maptiles/1.0"`
		MapboxKey              string        `env:"MAPBOX_KEY" envDefault:""`
		GoogleKey              string        `env:"GOOGLE_KEY" envDefault:""`
		MapTilerKey            string        `env:"MAPTILER_KEY" envDefault:""`
		CustomURLTemplate      string        `env:"CUSTOM_URL_TEMPLATE" envDefault:""`
	}

	Redis struct {
		Enabled  bool          `env:"ENABLED" envDefault:"false"`
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	Offline struct {
		Enabled bool   `env:"ENABLED" envDefault:"false"`
		Path    string `env:"PATH" envDefault:"tiles.db"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"geoclash-maptiles"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
