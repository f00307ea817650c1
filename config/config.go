// Package config loads service configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	ListenAddr              string
	StorageConnectionString string
	TasksTable              string
	RedisConnectionString   string
	Debug                   bool
}

// Load reads the environment into a Config and validates the required
// settings. A missing .env file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug(".env file not found, using environment variables")
	}

	cfg := Config{
		ListenAddr:              getEnv("LISTEN_ADDR", ":8080"),
		StorageConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:              getEnv("TASKS_TABLE", "tasks"),
		RedisConnectionString:   os.Getenv("REDIS_CONNECTION_STRING"),
		Debug:                   getEnvAsBool("DEBUG", false),
	}
	if cfg.StorageConnectionString == "" {
		return Config{}, errors.New("STORAGE_CONNECTION_STRING must not be empty")
	}
	if cfg.RedisConnectionString == "" {
		return Config{}, errors.New("REDIS_CONNECTION_STRING must not be empty")
	}
	return cfg, nil
}

// RedisOptions parses the Redis connection string. URL form is tried
// first, then the comma-separated host,password=...,ssl=... form some
// managed caches hand out.
func (c Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.RedisConnectionString)
	if err == nil {
		return opts, nil
	}

	parts := strings.Split(c.RedisConnectionString, ",")
	if parts[0] == "" {
		return nil, fmt.Errorf("invalid redis connection string: %w", err)
	}
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Warnf("invalid boolean for %s: %q", key, v)
			return defaultVal
		}
		return b
	}
	return defaultVal
}
