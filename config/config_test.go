package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/smartmoney/config"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

var envKeys = []string{
	"LOG_LEVEL", "LOG_FORMAT", "RPC_URLS", "DATABASE_URL", "TRADING_PRIVATE_KEY",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "REAL_TRADING_ENABLED", "ALERT_THRESHOLD",
	"TIME_WINDOW", "ALERT_COOLDOWN", "MAX_MCAP", "MIN_VOLUME_24H", "MIN_TXNS_24H",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeFile(t, "config.yaml", "chain:\n  rpc_urls: [\"https://rpc.example\"]\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Alert.Threshold)
	assert.Equal(t, 20, cfg.Alert.WindowSeconds)
	assert.Equal(t, 300, cfg.Alert.CooldownSeconds)
	assert.Equal(t, 300_000.0, cfg.Filter.MaxMcapUSD)
	assert.Equal(t, 1_000.0, cfg.Filter.MinVolume24hUSD)
	assert.Equal(t, 15, cfg.Filter.MinTxns24h)
	require.NotNil(t, cfg.Filter.RequireSwapEvent)
	assert.True(t, *cfg.Filter.RequireSwapEvent)
	assert.Contains(t, cfg.Filter.ExcludedSymbols, "WETH")
	assert.Equal(t, "paper", cfg.Trading.Mode)
	assert.False(t, cfg.Trading.Enabled)
	assert.Equal(t, "sqlite", cfg.Storage.QueueDriver)
	assert.Equal(t, 30, cfg.Storage.RetentionDays)
	assert.Equal(t, "info", cfg.Log.Level)

	require.Len(t, cfg.Strategies, 2)
	sm := cfg.Strategies[0]
	assert.Equal(t, domain.TriggerSmartMoney, sm.Trigger)
	assert.Equal(t, 0.005, sm.TradeSize)
	assert.Equal(t, 3, sm.MaxOpenPositions)
	assert.Equal(t, 0.03, sm.MaxTotalExposure)
	assert.Equal(t, 0.6, sm.SLMultiplier)
	assert.Equal(t, []config.TPLevel{{Multiplier: 2, SellPercent: 50}, {Multiplier: 3, SellPercent: 100}}, sm.TPLevels)
	assert.Equal(t, domain.TriggerSmartestWallet, cfg.Strategies[1].Trigger)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALERT_THRESHOLD", "5")
	t.Setenv("MAX_MCAP", "500000")
	t.Setenv("RPC_URLS", "https://a.example, https://b.example,")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("REAL_TRADING_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(writeFile(t, "config.yaml", "alert:\n  threshold: 2\n"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Alert.Threshold)
	assert.Equal(t, 500_000.0, cfg.Filter.MaxMcapUSD)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Chain.RPCURLs)
	assert.Equal(t, "tok", cfg.Notify.TelegramToken)
	assert.Equal(t, "42", cfg.Notify.TelegramChatID)
	assert.True(t, cfg.Trading.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_BadEnvValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIN_TXNS_24H", "many")

	_, err := config.Load(writeFile(t, "config.yaml", "{}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_TXNS_24H")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_CustomStrategies(t *testing.T) {
	clearEnv(t)
	yaml := `
strategies:
  - id: momentum
    trigger: smart_money
    trade_size: 0.01
    max_total_exposure: 0.05
    min_momentum_pct: 20
    require_confirmation: true
    time_stop_minutes: 90
queue:
  confirm_triggers: [smartest_wallet]
`
	cfg, err := config.Load(writeFile(t, "config.yaml", yaml))
	require.NoError(t, err)
	require.Len(t, cfg.Strategies, 1)

	s := cfg.Strategies[0].Domain(time.UTC)
	assert.Equal(t, "momentum", s.ID)
	assert.Equal(t, 90*time.Minute, s.TimeStop)
	assert.Equal(t, time.Hour, s.LossStreakCooldown)
	assert.True(t, s.RequireConfirmation)
	assert.Len(t, s.TPLevels, 2)

	triggers := cfg.ConfirmTriggerSet()
	assert.True(t, triggers[domain.TriggerSmartMoney])
	assert.True(t, triggers[domain.TriggerSmartestWallet])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{
			name: "live without key",
			yaml: "trading:\n  mode: live\n  enabled: true\n",
			want: "TRADING_PRIVATE_KEY",
		},
		{
			name: "unknown mode",
			yaml: "trading:\n  mode: yolo\n",
			want: "trading.mode",
		},
		{
			name: "postgres without dsn",
			yaml: "storage:\n  queue_driver: postgres\n",
			want: "DATABASE_URL",
		},
		{
			name: "bad ladder",
			yaml: "strategies:\n  - id: x\n    tp_levels: [{multiplier: 3, sell_percent: 50}, {multiplier: 2, sell_percent: 100}]\n",
			want: "tp level 1",
		},
		{
			name: "duplicate ids",
			yaml: "strategies:\n  - id: a\n  - id: a\n",
			want: "duplicate id",
		},
		{
			name: "trade above single trade cap",
			yaml: "trading:\n  mode: live\n  max_single_trade: 0.001\n",
			want: "max single trade",
		},
		{
			name: "bad blackout hour",
			yaml: "alert:\n  blackout_hours: [25]\n",
			want: "out of range",
		},
		{
			name: "bad timezone",
			yaml: "alert:\n  timezone: Mars/Olympus\n",
			want: "alert.timezone",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(writeFile(t, "config.yaml", tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestExpiryPolicy(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeFile(t, "config.yaml", "queue:\n  pending_max_age_seconds: 60\n"))
	require.NoError(t, err)

	p := cfg.ExpiryPolicy()
	assert.Equal(t, time.Minute, p.PendingMaxAge)
	assert.Equal(t, 10*time.Minute, p.ConfirmationMaxAge)
	assert.Equal(t, 15*time.Minute, p.ProcessingMaxAge)
}

func TestLoadWallets(t *testing.T) {
	const (
		a = "0x1111111111111111111111111111111111111111"
		b = "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	)

	t.Run("plain list", func(t *testing.T) {
		path := writeFile(t, "wallets.json", `["`+a+`", "0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD", "`+a+`"]`)
		got, err := config.LoadWallets(path)
		require.NoError(t, err)
		assert.Equal(t, []string{a, b}, got)
	})

	t.Run("wrapped objects", func(t *testing.T) {
		path := writeFile(t, "wallets.json", `{"wallets": [{"address": "`+a+`", "label": "whale"}, "`+b+`"]}`)
		got, err := config.LoadWallets(path)
		require.NoError(t, err)
		assert.Equal(t, []string{a, b}, got)
	})

	t.Run("invalid address", func(t *testing.T) {
		path := writeFile(t, "wallets.json", `["0x1234"]`)
		_, err := config.LoadWallets(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid address")
	})

	t.Run("not json", func(t *testing.T) {
		path := writeFile(t, "wallets.json", `wallets: nope`)
		_, err := config.LoadWallets(path)
		require.Error(t, err)
	})
}
