package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded by a .env file.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	StoragePath    string `env:"STORAGE_PATH"`

	AIBaseURL       string        `env:"AI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AIAPIKey        string        `env:"AI_API_KEY"`
	AIModel         string        `env:"AI_MODEL" envDefault:"gpt-4o-mini"`
	AITimeout       time.Duration `env:"AI_TIMEOUT" envDefault:"30s"`
	AITemperature   float64       `env:"AI_TEMPERATURE" envDefault:"0.9"`
	AIMaxTokens     int64         `env:"AI_MAX_TOKENS" envDefault:"1024"`
	AIRatePerSecond float64       `env:"AI_RATE_PER_SECOND" envDefault:"2"`

	DefaultMood   string        `env:"DEFAULT_MOOD" envDefault:"happy"`
	MoodMinMs     int64         `env:"MOOD_CHANGE_INTERVAL_MIN_MS" envDefault:"1800000"`
	MoodMaxMs     int64         `env:"MOOD_CHANGE_INTERVAL_MAX_MS" envDefault:"7200000"`
	MaxTurns      int           `env:"MAX_CONTEXT_TURNS" envDefault:"5"`
	AgentName     string        `env:"AGENT_DISPLAY_NAME" envDefault:"Miyabi"`
	CreatorID     string        `env:"CREATOR_ID"`
	PersonaPath   string        `env:"PERSONA_PATH"`
	ReplyRetries  int           `env:"REPLY_RETRIES" envDefault:"2"`
	ReplyCooldown time.Duration `env:"REPLY_COOLDOWN" envDefault:"3s"`
	ReplyPerMin   int           `env:"REPLY_PER_MINUTE" envDefault:"20"`
}

// LoadDotEnv loads a .env file from the working directory if one exists.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, falling back to system environment variables")
	}
}

// New parses the environment into a Config and validates it.
func New() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StoragePath == "" {
		cfg.StoragePath = defaultStoragePath(cfg.StorageBackend)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultStoragePath(backend string) string {
	if backend == "json" {
		return "data/miyabi.json"
	}
	return "data/miyabi.db"
}

// MoodMinInterval returns the lower bound between automatic mood changes.
func (c *Config) MoodMinInterval() time.Duration {
	return time.Duration(c.MoodMinMs) * time.Millisecond
}

// MoodMaxInterval returns the upper bound between automatic mood changes.
func (c *Config) MoodMaxInterval() time.Duration {
	return time.Duration(c.MoodMaxMs) * time.Millisecond
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case "sqlite", "json":
	default:
		errs = append(errs, fmt.Errorf("config: STORAGE_BACKEND must be sqlite or json, got %q", c.StorageBackend))
	}
	if c.MoodMinMs <= 0 {
		errs = append(errs, fmt.Errorf("config: MOOD_CHANGE_INTERVAL_MIN_MS must be positive"))
	}
	if c.MoodMaxMs < c.MoodMinMs {
		errs = append(errs, fmt.Errorf("config: MOOD_CHANGE_INTERVAL_MAX_MS must not be below the minimum"))
	}
	if c.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("config: MAX_CONTEXT_TURNS must not be negative"))
	}
	if strings.TrimSpace(c.DefaultMood) == "" {
		errs = append(errs, fmt.Errorf("config: DEFAULT_MOOD is empty"))
	}
	if strings.TrimSpace(c.AgentName) == "" {
		errs = append(errs, fmt.Errorf("config: AGENT_DISPLAY_NAME is empty"))
	}
	if c.AITemperature < 0 || c.AITemperature > 2 {
		errs = append(errs, fmt.Errorf("config: AI_TEMPERATURE must be within [0, 2]"))
	}
	if c.ReplyRetries < 0 {
		errs = append(errs, fmt.Errorf("config: REPLY_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}
