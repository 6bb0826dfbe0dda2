package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	Env                   string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	AdvisorURL            string
	AdvisorTimeoutSeconds int
	SuggestionTTLSeconds  int
}

// Load reads configuration from the environment, with an optional .env file
// in the working directory for local development.
func Load() Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("ADVISOR_TIMEOUT_SECONDS", 30)
	v.SetDefault("SUGGESTION_TTL_SECONDS", 3600)

	// Missing .env is fine; the environment alone is a complete source.
	_ = v.ReadInConfig()

	cfg := Config{
		Port:                  v.GetString("PORT"),
		Env:                   v.GetString("SERVER_ENV"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: v.GetInt("ACCESS_TOKEN_TTL_MINUTES"),
		AdvisorURL:            strings.TrimSpace(v.GetString("ADVISOR_URL")),
		AdvisorTimeoutSeconds: v.GetInt("ADVISOR_TIMEOUT_SECONDS"),
		SuggestionTTLSeconds:  v.GetInt("SUGGESTION_TTL_SECONDS"),
	}

	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.AdvisorTimeoutSeconds < 1 {
		cfg.AdvisorTimeoutSeconds = 30
	}
	if cfg.SuggestionTTLSeconds < 1 {
		cfg.SuggestionTTLSeconds = 3600
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
