package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server ServerConfig
	MySQL  MySQLConfig
	Redis  RedisConfig
	Sale   SaleConfig
	Log    LogConfig
}

type ServerConfig struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

type MySQLConfig struct {
	DSN          string        `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/flashsale?parseTime=true"`
	MaxOpenConns int           `envconfig:"MYSQL_MAX_OPEN_CONNS" default:"50"`
	MaxIdleConns int           `envconfig:"MYSQL_MAX_IDLE_CONNS" default:"25"`
	ConnLifetime time.Duration `envconfig:"MYSQL_CONN_LIFETIME" default:"5m"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	PoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"100"`
}

type SaleConfig struct {
	// DefaultQuotaLimit applies when a sale row carries no per-customer
	// limit of its own.
	DefaultQuotaLimit   int           `envconfig:"DEFAULT_QUOTA_LIMIT" default:"1"`
	LeaseTTL            time.Duration `envconfig:"LEASE_TTL" default:"3s"`
	CompensatorWorkers  int           `envconfig:"COMPENSATOR_WORKERS" default:"4"`
	CompensatorQueue    int           `envconfig:"COMPENSATOR_QUEUE" default:"1024"`
	ReservedGracePeriod time.Duration `envconfig:"RESERVED_GRACE_PERIOD" default:"30s"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env config: %w", err)
	}
	return cfg, nil
}
