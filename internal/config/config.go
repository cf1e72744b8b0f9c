package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Market      MarketConfig    `mapstructure:"market"`
	Sentiment   SentimentConfig `mapstructure:"sentiment"`
	Engine      EngineConfig    `mapstructure:"engine"`
	Trading     TradingConfig   `mapstructure:"trading"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MarketConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout string `mapstructure:"timeout"`
}

type SentimentConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	CacheTTL string `mapstructure:"cache_ttl"`
}

type EngineConfig struct {
	Instruments      []string `mapstructure:"instruments"`
	Timeframes       []string `mapstructure:"timeframes"`
	CandleWidth      string   `mapstructure:"candle_width"`
	CandleHistoryCap int      `mapstructure:"candle_history_cap"`
	CycleInterval    string   `mapstructure:"cycle_interval"`
	VerifyAgeFloor   string   `mapstructure:"verify_age_floor"`
}

type TradingConfig struct {
	Leverage           float64 `mapstructure:"leverage"`
	EntryMinConfidence float64 `mapstructure:"entry_min_confidence"`
	MinBalance         float64 `mapstructure:"min_balance"`
	StartingBalance    float64 `mapstructure:"starting_balance"`
	DailyLossLimit     float64 `mapstructure:"daily_loss_limit"`
	MaxHoldMinutes     int     `mapstructure:"max_hold_minutes"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, defaults plus environment variables apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	for _, field := range []struct {
		name, value string
	}{
		{"market.timeout", config.Market.Timeout},
		{"sentiment.cache_ttl", config.Sentiment.CacheTTL},
		{"engine.candle_width", config.Engine.CandleWidth},
		{"engine.cycle_interval", config.Engine.CycleInterval},
		{"engine.verify_age_floor", config.Engine.VerifyAgeFloor},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %w", field.name, err)
		}
	}

	if config.Trading.Leverage <= 0 {
		return nil, fmt.Errorf("trading leverage must be positive, got %v", config.Trading.Leverage)
	}
	if config.Engine.CandleHistoryCap <= 0 {
		return nil, fmt.Errorf("candle history cap must be positive, got %d", config.Engine.CandleHistoryCap)
	}

	return &config, nil
}

// Duration returns the parsed value of a duration field validated by Load.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "ensembot")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("market.base_url", "http://localhost:3001")
	viper.SetDefault("market.timeout", "10s")

	viper.SetDefault("sentiment.base_url", "https://api.alternative.me/fng/")
	viper.SetDefault("sentiment.cache_ttl", "5m")

	viper.SetDefault("engine.instruments", []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"})
	viper.SetDefault("engine.timeframes", []string{"15m", "1h"})
	viper.SetDefault("engine.candle_width", "1m")
	viper.SetDefault("engine.candle_history_cap", 100)
	viper.SetDefault("engine.cycle_interval", "1m")
	viper.SetDefault("engine.verify_age_floor", "30s")

	viper.SetDefault("trading.leverage", 20.0)
	viper.SetDefault("trading.entry_min_confidence", 60.0)
	viper.SetDefault("trading.min_balance", 100.0)
	viper.SetDefault("trading.starting_balance", 1000.0)
	viper.SetDefault("trading.daily_loss_limit", -20.0)
	viper.SetDefault("trading.max_hold_minutes", 30)
}
