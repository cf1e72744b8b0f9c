package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}, cfg.Engine.Instruments)
	assert.Equal(t, []string{"15m", "1h"}, cfg.Engine.Timeframes)
	assert.Equal(t, 20.0, cfg.Trading.Leverage)
	assert.Equal(t, 60.0, cfg.Trading.EntryMinConfidence)
	assert.Equal(t, -20.0, cfg.Trading.DailyLossLimit)
	assert.Equal(t, 30, cfg.Trading.MaxHoldMinutes)
	assert.Equal(t, time.Minute, Duration(cfg.Engine.CandleWidth))
	assert.Equal(t, 30*time.Second, Duration(cfg.Engine.VerifyAgeFloor))
}

func TestLoadEnvironmentOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("TRADING_LEVERAGE", "10")
	t.Setenv("ENVIRONMENT", "Production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.Trading.Leverage)
	assert.Equal(t, "production", cfg.Environment, "environment is normalized to lower case")
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	viper.Reset()
	t.Setenv("ENGINE_CANDLE_WIDTH", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.candle_width")
}

func TestLoadRejectsNonPositiveLeverage(t *testing.T) {
	viper.Reset()
	t.Setenv("TRADING_LEVERAGE", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveHistoryCap(t *testing.T) {
	viper.Reset()
	t.Setenv("ENGINE_CANDLE_HISTORY_CAP", "0")

	_, err := Load()
	assert.Error(t, err)
}
