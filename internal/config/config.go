package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Session SessionConfig
	Kafka   KafkaConfig
	MySQL   MySQLConfig
}

var (
	ConfigInstance *Config
	once           sync.Once
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

type JWTConfig struct {
	Secret string
}

// SessionConfig controls the shared per-user session keys. The TTL applies
// to the device set, the active-device pointer and the playback state alike;
// all of it is ephemeral so expiry is acceptable.
type SessionConfig struct {
	TTL time.Duration
}

// KafkaConfig enables best-effort event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// MySQLConfig enables the device session audit log when DSN is non-empty.
type MySQLConfig struct {
	DSN string
}

func LoadConfig() (*Config, error) {
	once.Do(func() {
		viper.SetDefault("PLAYSYNC_PORT", "8080")
		viper.SetDefault("PLAYSYNC_READ_TIMEOUT", 30*time.Second)
		viper.SetDefault("PLAYSYNC_WRITE_TIMEOUT", 30*time.Second)
		viper.SetDefault("PLAYSYNC_IDLE_TIMEOUT", 60*time.Second)
		viper.SetDefault("PLAYSYNC_JWT_SECRET", "secret")
		viper.SetDefault("PLAYSYNC_SESSION_TTL", 24*time.Hour)
		viper.SetDefault("REDIS_HOST", "localhost")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("REDIS_MAX_RETRIES", 3)
		viper.SetDefault("REDIS_POOL_SIZE", 100)
		viper.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
		viper.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
		viper.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
		viper.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
		viper.SetDefault("KAFKA_TOPIC", "playsync-events")
		viper.SetDefault("MYSQL_DSN", "")
		viper.AutomaticEnv()

		ConfigInstance = &Config{
			Server: ServerConfig{
				Host:         viper.GetString("PLAYSYNC_HOST"),
				Port:         viper.GetString("PLAYSYNC_PORT"),
				ReadTimeout:  viper.GetDuration("PLAYSYNC_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("PLAYSYNC_WRITE_TIMEOUT"),
				IdleTimeout:  viper.GetDuration("PLAYSYNC_IDLE_TIMEOUT"),
			},
			Redis: RedisConfig{
				Host:         viper.GetString("REDIS_HOST"),
				Port:         viper.GetString("REDIS_PORT"),
				Password:     viper.GetString("REDIS_PASSWORD"),
				DB:           viper.GetInt("REDIS_DB"),
				MaxRetries:   viper.GetInt("REDIS_MAX_RETRIES"),
				DialTimeout:  viper.GetDuration("REDIS_DIAL_TIMEOUT"),
				ReadTimeout:  viper.GetDuration("REDIS_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("REDIS_WRITE_TIMEOUT"),
				PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
				MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
			},
			JWT: JWTConfig{
				Secret: viper.GetString("PLAYSYNC_JWT_SECRET"),
			},
			Session: SessionConfig{
				TTL: viper.GetDuration("PLAYSYNC_SESSION_TTL"),
			},
			Kafka: KafkaConfig{
				Brokers: viper.GetStringSlice("KAFKA_BROKERS"),
				Topic:   viper.GetString("KAFKA_TOPIC"),
			},
			MySQL: MySQLConfig{
				DSN: viper.GetString("MYSQL_DSN"),
			},
		}
	})

	return ConfigInstance, nil
}
