package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig

	// Which docstore backend the daemon runs against.
	Store StoreConfig

	// MySQL settings, used when Store.Backend is "mysql".
	Database DatabaseConfig

	// MongoDB settings, used when Store.Backend is "mongo".
	MongoDB MongoConfig

	Auth AuthConfig

	Notification NotificationConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
}

type StoreConfig struct {
	// Backend is "memory", "mysql" or "mongo".
	Backend string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	DatabaseName string
	MaxOpenConns int
	MaxIdleConns int
}

type MongoConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

type AuthConfig struct {
	// Shared secret the hosted auth platform signs session tokens with.
	JWTSecret string
}

type NotificationConfig struct {
	Workers           int
	ChannelBufferSize int
}

// Load reads configuration from the environment, with a best-effort .env
// file load first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("config: .env file not found, using system env variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         envOr("SERVER_HOST", "127.0.0.1"),
			Port:         envOr("SERVER_PORT", "8090"),
			ReadTimeout:  envIntOr("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: envIntOr("SERVER_WRITE_TIMEOUT", 0),
		},
		Store: StoreConfig{
			Backend: envOr("STORE_BACKEND", "memory"),
		},
		Database: DatabaseConfig{
			Host:         envOr("MYSQL_HOST", "localhost"),
			Port:         envOr("MYSQL_PORT", "3306"),
			Username:     os.Getenv("MYSQL_USER"),
			Password:     os.Getenv("MYSQL_PASSWORD"),
			DatabaseName: envOr("MYSQL_DATABASE", "socialdesk"),
			MaxOpenConns: envIntOr("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envIntOr("MYSQL_MAX_IDLE_CONNS", 5),
		},
		MongoDB: MongoConfig{
			Host:     envOr("MONGO_HOST", "localhost"),
			Port:     envOr("MONGO_PORT", "27017"),
			Username: os.Getenv("MONGO_USER"),
			Password: os.Getenv("MONGO_PASSWORD"),
			Database: envOr("MONGO_DATABASE", "socialdesk"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Notification: NotificationConfig{
			Workers:           envIntOr("NOTIF_WORKERS", 4),
			ChannelBufferSize: envIntOr("NOTIF_BUFFER", 1000),
		},
	}

	switch cfg.Store.Backend {
	case "memory", "mysql", "mongo":
	default:
		return nil, fmt.Errorf("config: unknown store backend %q", cfg.Store.Backend)
	}
	return cfg, nil
}

// DSN builds the MySQL connection string.
func (cfg *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

// MongoURI builds the MongoDB connection string.
func (cfg *Config) MongoURI() string {
	if cfg.MongoDB.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s",
			cfg.MongoDB.Username, cfg.MongoDB.Password, cfg.MongoDB.Host, cfg.MongoDB.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s", cfg.MongoDB.Host, cfg.MongoDB.Port)
}

// Addr is the bridge listen address.
func (cfg *Config) Addr() string {
	return cfg.Server.Host + ":" + cfg.Server.Port
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid integer for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
