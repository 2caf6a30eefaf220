// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Storefront StorefrontConfig `mapstructure:"storefront"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// HTTPConfig holds the health endpoint listener configuration.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// EngineConfig bounds the commerce engine's storage operations.
type EngineConfig struct {
	// OpTimeout caps every storage transaction. A deadline hit maps to
	// an Unavailable result, never a partial apply.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
	// SettingsReload is the cadence at which the storefront snapshot is
	// re-read from the config source.
	SettingsReload time.Duration `mapstructure:"settings_reload"`
	// ClaimCooldown is the rolling window for daily and scratch claims.
	ClaimCooldown time.Duration `mapstructure:"claim_cooldown"`
}

// StorefrontConfig holds the reloadable storefront settings as they appear
// in the config file. Parse converts them into an immutable Snapshot.
type StorefrontConfig struct {
	WelcomeMessage   string  `mapstructure:"welcome_message"`
	Currency         string  `mapstructure:"currency"`
	SupportLink      string  `mapstructure:"support_link"`
	Rules            string  `mapstructure:"rules"`
	ForceJoinChannel string  `mapstructure:"force_join_channel"`
	CaptchaEnabled   bool    `mapstructure:"captcha_enabled"`
	ShopEnabled      bool    `mapstructure:"shop_enabled"`
	DailyEnabled     bool    `mapstructure:"daily_enabled"`
	ScratchEnabled   bool    `mapstructure:"scratch_enabled"`
	ReferralEnabled  bool    `mapstructure:"referral_enabled"`
	ReferralReward   string  `mapstructure:"referral_reward"`
	DailyReward      string  `mapstructure:"daily_reward"`
	ScratchRewards   string  `mapstructure:"scratch_rewards"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the given directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables override file values, e.g. BOT_TOKEN,
	// DATABASE_HOST, STOREFRONT_DAILY_REWARD.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "shopbot")
	v.SetDefault("database.name", "shopbot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("engine.op_timeout", "5s")
	v.SetDefault("engine.settings_reload", "1m")
	v.SetDefault("engine.claim_cooldown", "24h")

	v.SetDefault("storefront.welcome_message", "Welcome to our shop, {name}!")
	v.SetDefault("storefront.currency", "$")
	v.SetDefault("storefront.support_link", "https://t.me/telegram")
	v.SetDefault("storefront.rules", "No spamming. Be respectful.")
	v.SetDefault("storefront.captcha_enabled", true)
	v.SetDefault("storefront.shop_enabled", true)
	v.SetDefault("storefront.daily_enabled", true)
	v.SetDefault("storefront.scratch_enabled", true)
	v.SetDefault("storefront.referral_enabled", true)
	v.SetDefault("storefront.referral_reward", "5.0")
	v.SetDefault("storefront.daily_reward", "2.0")
	v.SetDefault("storefront.scratch_rewards", "1.0,5.0,10.0")
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Parse converts the raw storefront settings into a validated Snapshot.
func (s *StorefrontConfig) Parse() (*Snapshot, error) {
	referral, err := decimal.NewFromString(strings.TrimSpace(s.ReferralReward))
	if err != nil {
		return nil, fmt.Errorf("invalid referral_reward %q: %w", s.ReferralReward, err)
	}
	daily, err := decimal.NewFromString(strings.TrimSpace(s.DailyReward))
	if err != nil {
		return nil, fmt.Errorf("invalid daily_reward %q: %w", s.DailyReward, err)
	}

	var scratch []decimal.Decimal
	for _, part := range strings.Split(s.ScratchRewards, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := decimal.NewFromString(part)
		if err != nil {
			return nil, fmt.Errorf("invalid scratch reward %q: %w", part, err)
		}
		if d.Sign() <= 0 {
			return nil, fmt.Errorf("scratch reward %s must be positive", d)
		}
		scratch = append(scratch, d)
	}
	if s.ScratchEnabled && len(scratch) == 0 {
		return nil, fmt.Errorf("scratch_rewards must not be empty while scratch is enabled")
	}

	return &Snapshot{
		WelcomeMessage:   s.WelcomeMessage,
		Currency:         s.Currency,
		SupportLink:      s.SupportLink,
		Rules:            s.Rules,
		ForceJoinChannel: s.ForceJoinChannel,
		CaptchaEnabled:   s.CaptchaEnabled,
		ShopEnabled:      s.ShopEnabled,
		DailyEnabled:     s.DailyEnabled,
		ScratchEnabled:   s.ScratchEnabled,
		ReferralEnabled:  s.ReferralEnabled,
		ReferralReward:   referral,
		DailyReward:      daily,
		ScratchRewards:   scratch,
	}, nil
}
