// Package config loads service settings from .env files, an optional config file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string
	DBMigrate   bool
	RedisURL    string

	RoadFactor      float64
	SpeedKph        float64
	SolveBudget     time.Duration
	MaxRouteKm      float64
	MaxPoints       int
	CitiesFile      string
	PlanParallelism int

	RateRPS   float64
	RateBurst int

	AuthMode       string
	AuthHMACSecret string

	WebhookMaxAttempts int
	AllowOrigins       []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MIGRATE", true)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("ROAD_FACTOR", 1.3)
	v.SetDefault("SPEED_KPH", 25.0)
	v.SetDefault("SOLVER_TIME_BUDGET", "10s")
	v.SetDefault("MAX_ROUTE_KM", 60.0) // per-vehicle limit; 0 disables it
	v.SetDefault("MAX_POINTS", 1000)
	v.SetDefault("CITIES_FILE", "")
	v.SetDefault("PLAN_PARALLELISM", 1)
	v.SetDefault("RATE_RPS", 5.0)
	v.SetDefault("RATE_BURST", 10)
	v.SetDefault("AUTH_MODE", "dev")
	v.SetDefault("AUTH_HMAC_SECRET", "")
	v.SetDefault("WEBHOOK_MAX_ATTEMPTS", 10)
	v.SetDefault("ALLOW_ORIGINS", "*")
}

// Load reads envFile (missing is fine), then CONFIG_FILE if set, then the process environment.
// Environment values win over the config file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	c := Config{
		Port:               v.GetString("PORT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		DBMigrate:          v.GetBool("DB_MIGRATE"),
		RedisURL:           v.GetString("REDIS_URL"),
		RoadFactor:         v.GetFloat64("ROAD_FACTOR"),
		SpeedKph:           v.GetFloat64("SPEED_KPH"),
		SolveBudget:        v.GetDuration("SOLVER_TIME_BUDGET"),
		MaxRouteKm:         v.GetFloat64("MAX_ROUTE_KM"),
		MaxPoints:          v.GetInt("MAX_POINTS"),
		CitiesFile:         v.GetString("CITIES_FILE"),
		PlanParallelism:    v.GetInt("PLAN_PARALLELISM"),
		RateRPS:            v.GetFloat64("RATE_RPS"),
		RateBurst:          v.GetInt("RATE_BURST"),
		AuthMode:           strings.ToLower(v.GetString("AUTH_MODE")),
		AuthHMACSecret:     v.GetString("AUTH_HMAC_SECRET"),
		WebhookMaxAttempts: v.GetInt("WEBHOOK_MAX_ATTEMPTS"),
		AllowOrigins:       splitList(v.GetString("ALLOW_ORIGINS")),
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.RoadFactor < 1:
		return fmt.Errorf("ROAD_FACTOR must be >= 1, got %g", c.RoadFactor)
	case c.SpeedKph <= 0:
		return fmt.Errorf("SPEED_KPH must be positive, got %g", c.SpeedKph)
	case c.SolveBudget <= 0:
		return fmt.Errorf("SOLVER_TIME_BUDGET must be positive, got %s", c.SolveBudget)
	case c.MaxRouteKm < 0:
		return fmt.Errorf("MAX_ROUTE_KM must not be negative")
	case c.MaxPoints <= 0:
		return fmt.Errorf("MAX_POINTS must be positive")
	case c.PlanParallelism <= 0:
		return fmt.Errorf("PLAN_PARALLELISM must be positive")
	case c.AuthMode == "hmac" && c.AuthHMACSecret == "":
		return fmt.Errorf("AUTH_HMAC_SECRET is required when AUTH_MODE=hmac")
	}
	return nil
}

func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
