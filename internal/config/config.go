package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ravikumarmistry/quix/internal/container"
	"github.com/ravikumarmistry/quix/internal/storage"
)

// Drivers accepted in STORE_DRIVER.
const (
	DriverMemory  = "memory"
	DriverCosmos  = "cosmos"
	DriverMongoDB = "mongodb"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Store      StoreConfig
	Cosmos     CosmosConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	OIDC       OIDCConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	MinIO      storage.MinIOConfig
	Containers []container.Config
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type StoreConfig struct {
	Driver         string
	ContainersFile string
}

type CosmosConfig struct {
	Endpoint string
	Key      string
	Database string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type OIDCConfig struct {
	IssuerURL string
	ClientID  string
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	RPS    float64
	Burst  int
	Window time.Duration
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("STORE_DRIVER", DriverMemory)
	viper.SetDefault("MONGODB_DATABASE", "quix")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("COSMOS_DATABASE", "quix")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("JWT_ISSUER", "quix")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("RATE_LIMIT_RPS", 50)
	viper.SetDefault("RATE_LIMIT_BURST", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW", 60)
	viper.SetDefault("MINIO_BUCKET", "quix-exports")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		Store: StoreConfig{
			Driver:         strings.ToLower(viper.GetString("STORE_DRIVER")),
			ContainersFile: viper.GetString("CONTAINERS_FILE"),
		},
		Cosmos: CosmosConfig{
			Endpoint: viper.GetString("COSMOS_ENDPOINT"),
			Key:      os.Getenv("COSMOS_KEY"),
			Database: viper.GetString("COSMOS_DATABASE"),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		OIDC: OIDCConfig{
			IssuerURL: viper.GetString("OIDC_ISSUER_URL"),
			ClientID:  viper.GetString("OIDC_CLIENT_ID"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			Issuer:         viper.GetString("JWT_ISSUER"),
			AccessTokenTTL: time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RPS:    viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:  viper.GetInt("RATE_LIMIT_BURST"),
			Window: time.Duration(viper.GetInt("RATE_LIMIT_WINDOW")) * time.Second,
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
	}

	if cfg.Store.ContainersFile != "" {
		containers, err := LoadContainers(cfg.Store.ContainersFile)
		if err != nil {
			return nil, err
		}
		cfg.Containers = containers
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverCosmos:
		if c.Cosmos.Endpoint == "" {
			return fmt.Errorf("COSMOS_ENDPOINT is required for the %s driver", DriverCosmos)
		}
	case DriverMongoDB:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("MONGODB_URI is required for the %s driver", DriverMongoDB)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	return nil
}

// LoadContainers reads entity to container mappings from a YAML file:
//
//	containers:
//	  - entityName: order
//	    containerId: orders
//	    partitionKeyField: tenantId
func LoadContainers(path string) ([]container.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read containers file %s: %w", path, err)
	}
	var out []container.Config
	if err := v.UnmarshalKey("containers", &out); err != nil {
		return nil, fmt.Errorf("parse containers file %s: %w", path, err)
	}
	return out, nil
}
