package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "tgmatch.yaml"

// ErrMissingBotToken is reported by Validate when no bot token is set.
var ErrMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

// Config is the server configuration. Environment variables override
// values read from the YAML file.
type Config struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"db_path"`
	Domain string `yaml:"domain"`

	Telegram Telegram `yaml:"telegram"`
	Session  Session  `yaml:"session"`
	Dating   Dating   `yaml:"dating"`

	AdminTelegramIDs []int64 `yaml:"admin_telegram_ids"`
}

type Telegram struct {
	BotToken string        `yaml:"bot_token"`
	BotName  string        `yaml:"bot_name"`
	MaxAge   time.Duration `yaml:"auth_max_age"` // 0 disables auth_date checks
}

type Session struct {
	HashKey  string `yaml:"hash_key"`  // hex, 32 bytes
	BlockKey string `yaml:"block_key"` // hex, 32 bytes
}

type Dating struct {
	SuperLikesPerDay int `yaml:"super_likes_per_day"`
	FeedLimit        int `yaml:"feed_limit"`
}

// Default returns a config with development defaults.
func Default() *Config {
	return &Config{
		Addr:   ":8080",
		DBPath: "tgmatch.db",
		Domain: "localhost",
		Telegram: Telegram{
			MaxAge: 24 * time.Hour,
		},
		Dating: Dating{
			SuperLikesPerDay: 1,
			FeedLimit:        50,
		},
	}
}

// Load reads .env, then the YAML file at path (if it exists), then the
// environment. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, readable only by the owner.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate reports configuration faults. A missing bot token is returned as
// ErrMissingBotToken so callers can decide whether to keep running.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is empty")
	}
	if c.DBPath == "" {
		return errors.New("db_path is empty")
	}
	if c.Telegram.BotToken == "" {
		return ErrMissingBotToken
	}
	return nil
}

// IsSecure reports whether cookies should carry the Secure flag.
func (c *Config) IsSecure() bool {
	return c.Domain != "" && c.Domain != "localhost" && c.Domain != "127.0.0.1"
}

func (c *Config) applyEnv() error {
	setString(&c.Addr, "ADDR")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.Domain, "DOMAIN_NAME")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.BotName, "TELEGRAM_BOT_NAME")
	setString(&c.Session.HashKey, "SESSION_HASH_KEY")
	setString(&c.Session.BlockKey, "SESSION_BLOCK_KEY")

	if v := os.Getenv("AUTH_MAX_AGE"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("AUTH_MAX_AGE: %w", err)
		}
		c.Telegram.MaxAge = d
	}
	if v := os.Getenv("SUPER_LIKES_PER_DAY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SUPER_LIKES_PER_DAY: %w", err)
		}
		c.Dating.SuperLikesPerDay = n
	}
	if v := os.Getenv("FEED_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEED_LIMIT: %w", err)
		}
		c.Dating.FeedLimit = n
	}
	if v := os.Getenv("ADMIN_TELEGRAM_IDS"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("ADMIN_TELEGRAM_IDS: %w", err)
		}
		c.AdminTelegramIDs = ids
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// parseDuration accepts Go durations ("24h") and plain seconds ("86400").
func parseDuration(v string) (time.Duration, error) {
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(sec) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func parseIDs(v string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
