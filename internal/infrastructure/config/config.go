package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// StoreBackend selects the credential store: mongo, redis or memory.
	StoreBackend string `env:"STORE_BACKEND, default=mongo"`
	AuditWorkers int    `env:"AUDIT_WORKERS, default=4"`

	Token TokenConfig
	Mongo MongoConfig
	Redis RedisConfig
	Admin AdminConfig
}

type TokenConfig struct {
	Secret         string        `env:"JWT_SECRET, required"`
	MinSecretBytes int           `env:"JWT_SECRET_MIN_BYTES, default=32"`
	TTL            time.Duration `env:"TOKEN_TTL,            default=24h"`
	Issuer         string        `env:"TOKEN_ISSUER,         default=avi-health"`
	BcryptCost     int           `env:"BCRYPT_COST,          default=10"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=avi_health"`
}

type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR,         default=localhost:6379"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB,           default=0"`
	PoolSize    int           `env:"REDIS_POOL_SIZE,    default=10"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT, default=5s"`
}

// AdminConfig seeds an admin account at startup when all fields are set.
type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME"`
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
}

// Enabled reports whether an admin seed was configured.
func (a AdminConfig) Enabled() bool {
	return a.Username != "" && a.Email != "" && a.Password != ""
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

// LoadFromLookuper reads configuration from an arbitrary source; tests pass
// an envconfig.MapLookuper.
func LoadFromLookuper(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	return load(ctx, l)
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	switch cfg.StoreBackend {
	case BackendMongo, BackendRedis, BackendMemory:
	default:
		return nil, fmt.Errorf("config: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return &cfg, nil
}
