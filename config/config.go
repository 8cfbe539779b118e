package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// Config es la configuración completa de monitor y trader.
type Config struct {
	Chain       ChainConfig       `yaml:"chain"`
	DexScreener DexScreenerConfig `yaml:"dexscreener"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Alert       AlertConfig       `yaml:"alert"`
	Filter      FilterConfig      `yaml:"filter"`
	Queue       QueueConfig       `yaml:"queue"`
	Trading     TradingConfig     `yaml:"trading"`
	Strategies  []StrategyConfig  `yaml:"strategies"`
	Storage     StorageConfig     `yaml:"storage"`
	Notify      NotifyConfig      `yaml:"notify"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
	Wallets     WalletsConfig     `yaml:"wallets"`
}

// ChainConfig controla el pool de endpoints RPC.
type ChainConfig struct {
	RPCURLs                    []string `yaml:"rpc_urls"`        // con credenciales, en orden de prioridad
	PublicRPCURLs              []string `yaml:"public_rpc_urls"` // fallback
	RotateAfter                int      `yaml:"rotate_after"`    // errores consecutivos antes de rotar
	CallTimeoutSeconds         int      `yaml:"call_timeout_seconds"`
	ExhaustedAlertAfterSeconds int      `yaml:"exhausted_alert_after_seconds"`
}

// DexScreenerConfig controla el provider de metadata de tokens.
type DexScreenerConfig struct {
	BaseURL             string  `yaml:"base_url"`
	ChainID             string  `yaml:"chain_id"`
	MinPairLiquidityUSD float64 `yaml:"min_pair_liquidity_usd"`
	CacheTTLSeconds     int     `yaml:"cache_ttl_seconds"`
	FallbackNativeUSD   float64 `yaml:"fallback_native_usd"`
}

// MonitorConfig controla el loop de bloques.
type MonitorConfig struct {
	PollIntervalSeconds    int      `yaml:"poll_interval_seconds"`
	StartBlock             uint64   `yaml:"start_block"` // 0 = head actual
	MaxBlocksPerTick       int      `yaml:"max_blocks_per_tick"`
	CatchUpBlocks          uint64   `yaml:"catch_up_blocks"`
	CatchUpRate            float64  `yaml:"catch_up_rate"` // bloques/s mientras se pone al día
	MaintenanceEveryBlocks uint64   `yaml:"maintenance_every_blocks"`
	PriorityWallets        []string `yaml:"priority_wallets"` // disparan smartest_wallet
	TransferLogThreshold   int      `yaml:"transfer_log_threshold"`
}

// AlertConfig contiene las reglas del agregador.
type AlertConfig struct {
	Threshold              int    `yaml:"threshold"`
	WindowSeconds          int    `yaml:"window_seconds"`
	CooldownSeconds        int    `yaml:"cooldown_seconds"`
	BlackoutHours          []int  `yaml:"blackout_hours"`
	BlackoutExtra          int    `yaml:"blackout_extra"`
	Timezone               string `yaml:"timezone"`
	BullishWindowSeconds   int    `yaml:"bullish_window_seconds"` // 0 = cooldown
	MaxBullishRepeats      int    `yaml:"max_bullish_repeats"`    // 0 = sin límite
	FakeSuppressionSeconds int    `yaml:"fake_suppression_seconds"`
	FakeAlertFlagThreshold int    `yaml:"fake_alert_flag_threshold"`
	ExcludeFlaggedWallets  bool   `yaml:"exclude_flagged_wallets"`
}

// FilterConfig contiene los umbrales de calidad.
type FilterConfig struct {
	ExcludedTokens   []string `yaml:"excluded_tokens"`
	ExcludedSymbols  []string `yaml:"excluded_symbols"`
	RequireSwapEvent *bool    `yaml:"require_swap_event"` // nil = true
	MinLiquidityUSD  float64  `yaml:"min_liquidity_usd"`
	DustNative       float64  `yaml:"dust_native"`
	MinMcapUSD       float64  `yaml:"min_mcap_usd"`
	MaxMcapUSD       float64  `yaml:"max_mcap_usd"`
	MinVolume24hUSD  float64  `yaml:"min_volume_24h_usd"`
	MinTxns24h       int      `yaml:"min_txns_24h"`
}

// QueueConfig controla la cola de señales y el camino de confirmación.
type QueueConfig struct {
	SignalCooldownMinutes     int      `yaml:"signal_cooldown_minutes"`
	PendingMaxAgeSeconds      int      `yaml:"pending_max_age_seconds"`
	ConfirmationMaxAgeSeconds int      `yaml:"confirmation_max_age_seconds"`
	ProcessingMaxAgeSeconds   int      `yaml:"processing_max_age_seconds"`
	ConfirmTriggers           []string `yaml:"confirm_triggers"` // triggers que arrancan en pending_confirmation
	ConfirmDelaySeconds       int      `yaml:"confirm_delay_seconds"`
	ConfirmMinChangePct       float64  `yaml:"confirm_min_change_pct"`
	DeadTokenMcap             float64  `yaml:"dead_token_mcap"`
}

// TradingConfig controla el proceso trader.
type TradingConfig struct {
	Mode                string  `yaml:"mode"` // paper | live
	Enabled             bool    `yaml:"enabled"`
	PrivateKey          string  `yaml:"-"` // solo desde TRADING_PRIVATE_KEY
	PaperCapital        float64 `yaml:"paper_capital"`
	MaxSingleTrade      float64 `yaml:"max_single_trade"`
	PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
	ExitIntervalSeconds int     `yaml:"exit_interval_seconds"`
	SlippagePct         float64 `yaml:"slippage_pct"`
	PrimaryFeeTier      uint32  `yaml:"primary_fee_tier"`
	FallbackFeeTier     uint32  `yaml:"fallback_fee_tier"`
	GasMultiplier       float64 `yaml:"gas_multiplier"`
	MaxGasGwei          float64 `yaml:"max_gas_gwei"`
	GasReserve          float64 `yaml:"gas_reserve"`
	DailyResetCron      string  `yaml:"daily_reset_cron"`
	DailySummaryCron    string  `yaml:"daily_summary_cron"`
	Timezone            string  `yaml:"timezone"`
}

// TPLevel es un escalón del take-profit en YAML.
type TPLevel struct {
	Multiplier  float64 `yaml:"multiplier"`
	SellPercent float64 `yaml:"sell_percent"`
}

// StrategyConfig es una estrategia en YAML. Ver domain.StrategyConfig.
type StrategyConfig struct {
	ID                        string    `yaml:"id"`
	Trigger                   string    `yaml:"trigger"`
	TradeSize                 float64   `yaml:"trade_size"`
	MaxOpenPositions          int       `yaml:"max_open_positions"`
	MaxTotalExposure          float64   `yaml:"max_total_exposure"`
	MaxDailyLoss              float64   `yaml:"max_daily_loss"`
	MinMcap                   float64   `yaml:"min_mcap"`
	MaxMcap                   float64   `yaml:"max_mcap"`
	MinWalletCount            int       `yaml:"min_wallet_count"`
	ActiveHours               []int     `yaml:"active_hours"`
	MinMomentumPct            float64   `yaml:"min_momentum_pct"`
	TPLevels                  []TPLevel `yaml:"tp_levels"`
	SLMultiplier              float64   `yaml:"sl_multiplier"`
	TimeStopMinutes           int       `yaml:"time_stop_minutes"`
	LossStreakLimit           int       `yaml:"loss_streak_limit"`
	LossStreakCooldownMinutes int       `yaml:"loss_streak_cooldown_minutes"`
	RequireConfirmation       bool      `yaml:"require_confirmation"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`  // ruta al archivo SQLite, o ":memory:"
	QueueDriver   string `yaml:"queue_driver"` // sqlite | postgres
	PostgresDSN   string `yaml:"postgres_dsn"`
	RetentionDays int    `yaml:"retention_days"`
}

// NotifyConfig controla los canales de notificación.
type NotifyConfig struct {
	Console         bool   `yaml:"console"`
	TelegramBaseURL string `yaml:"telegram_base_url"`
	TelegramToken   string `yaml:"-"`
	TelegramChatID  string `yaml:"telegram_chat_id"`
}

// MetricsConfig controla el endpoint de Prometheus. Addr vacío lo deshabilita.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// WalletsConfig apunta a la lista de wallets a vigilar.
type WalletsConfig struct {
	Path string `yaml:"path"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
// Los secretos solo llegan por entorno.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("RPC_URLS"); v != "" {
		cfg.Chain.RPCURLs = splitList(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	cfg.Trading.PrivateKey = os.Getenv("TRADING_PRIVATE_KEY")
	cfg.Notify.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.TelegramChatID = v
	}

	var errs []error
	if v := os.Getenv("REAL_TRADING_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		errs = append(errs, envErr("REAL_TRADING_ENABLED", err))
		cfg.Trading.Enabled = b
	}
	errs = append(errs,
		envInt("ALERT_THRESHOLD", &cfg.Alert.Threshold),
		envInt("TIME_WINDOW", &cfg.Alert.WindowSeconds),
		envInt("ALERT_COOLDOWN", &cfg.Alert.CooldownSeconds),
		envFloat("MAX_MCAP", &cfg.Filter.MaxMcapUSD),
		envFloat("MIN_VOLUME_24H", &cfg.Filter.MinVolume24hUSD),
		envInt("MIN_TXNS_24H", &cfg.Filter.MinTxns24h),
	)
	return errors.Join(errs...)
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return envErr(key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return envErr(key, err)
	}
	*dst = f
	return nil
}

func envErr(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("env %s: %w", key, err)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if len(cfg.Chain.PublicRPCURLs) == 0 {
		cfg.Chain.PublicRPCURLs = []string{"https://mainnet.base.org", "https://base.llamarpc.com"}
	}
	if cfg.Chain.RotateAfter <= 0 {
		cfg.Chain.RotateAfter = 5
	}
	if cfg.Chain.CallTimeoutSeconds <= 0 {
		cfg.Chain.CallTimeoutSeconds = 10
	}
	if cfg.Chain.ExhaustedAlertAfterSeconds <= 0 {
		cfg.Chain.ExhaustedAlertAfterSeconds = 120
	}

	if cfg.DexScreener.ChainID == "" {
		cfg.DexScreener.ChainID = "base"
	}
	if cfg.DexScreener.CacheTTLSeconds <= 0 {
		cfg.DexScreener.CacheTTLSeconds = 15
	}

	if cfg.Monitor.PollIntervalSeconds <= 0 {
		cfg.Monitor.PollIntervalSeconds = 2
	}
	if cfg.Monitor.MaintenanceEveryBlocks == 0 {
		cfg.Monitor.MaintenanceEveryBlocks = 50
	}

	if cfg.Alert.Threshold <= 0 {
		cfg.Alert.Threshold = 3
	}
	if cfg.Alert.WindowSeconds <= 0 {
		cfg.Alert.WindowSeconds = 20
	}
	if cfg.Alert.CooldownSeconds <= 0 {
		cfg.Alert.CooldownSeconds = 300
	}
	if cfg.Alert.Timezone == "" {
		cfg.Alert.Timezone = "UTC"
	}
	if cfg.Alert.FakeAlertFlagThreshold <= 0 {
		cfg.Alert.FakeAlertFlagThreshold = 3
	}

	if len(cfg.Filter.ExcludedTokens) == 0 {
		cfg.Filter.ExcludedTokens = []string{
			"0x4200000000000000000000000000000000000006", // WETH
			"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", // USDC
			"0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2", // USDT
			"0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", // DAI
			"0x4200000000000000000000000000000000000042", // OP
			"0x0000000000000000000000000000000000000000",
		}
	}
	if len(cfg.Filter.ExcludedSymbols) == 0 {
		cfg.Filter.ExcludedSymbols = []string{"WETH", "USDC", "USDT", "DAI", "ETH"}
	}
	if cfg.Filter.RequireSwapEvent == nil {
		t := true
		cfg.Filter.RequireSwapEvent = &t
	}
	if cfg.Filter.MaxMcapUSD <= 0 {
		cfg.Filter.MaxMcapUSD = 300_000
	}
	if cfg.Filter.MinVolume24hUSD <= 0 {
		cfg.Filter.MinVolume24hUSD = 1_000
	}
	if cfg.Filter.MinTxns24h <= 0 {
		cfg.Filter.MinTxns24h = 15
	}

	if cfg.Queue.SignalCooldownMinutes <= 0 {
		cfg.Queue.SignalCooldownMinutes = 60
	}
	if cfg.Queue.PendingMaxAgeSeconds <= 0 {
		cfg.Queue.PendingMaxAgeSeconds = 300
	}
	if cfg.Queue.ConfirmationMaxAgeSeconds <= 0 {
		cfg.Queue.ConfirmationMaxAgeSeconds = 600
	}
	if cfg.Queue.ProcessingMaxAgeSeconds <= 0 {
		cfg.Queue.ProcessingMaxAgeSeconds = 900
	}
	if cfg.Queue.ConfirmDelaySeconds <= 0 {
		cfg.Queue.ConfirmDelaySeconds = 300
	}

	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "paper"
	}
	if cfg.Trading.PaperCapital <= 0 {
		cfg.Trading.PaperCapital = 1
	}
	if cfg.Trading.MaxSingleTrade <= 0 {
		cfg.Trading.MaxSingleTrade = 0.01
	}
	if cfg.Trading.PollIntervalSeconds <= 0 {
		cfg.Trading.PollIntervalSeconds = 5
	}
	if cfg.Trading.ExitIntervalSeconds <= 0 {
		cfg.Trading.ExitIntervalSeconds = 30
	}
	if cfg.Trading.DailyResetCron == "" {
		cfg.Trading.DailyResetCron = "0 0 * * *"
	}
	if cfg.Trading.DailySummaryCron == "" {
		cfg.Trading.DailySummaryCron = "30 23 * * *"
	}
	if cfg.Trading.Timezone == "" {
		cfg.Trading.Timezone = "UTC"
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = defaultStrategies()
	}
	for i := range cfg.Strategies {
		setStrategyDefaults(&cfg.Strategies[i])
	}

	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "smartmoney.db"
	}
	if cfg.Storage.QueueDriver == "" {
		cfg.Storage.QueueDriver = "sqlite"
	}
	if cfg.Storage.RetentionDays <= 0 {
		cfg.Storage.RetentionDays = 30
	}
	if cfg.Notify.TelegramBaseURL == "" {
		cfg.Notify.TelegramBaseURL = "https://api.telegram.org"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Wallets.Path == "" {
		cfg.Wallets.Path = "wallets.json"
	}
}

// defaultStrategies reproduce las dos estrategias históricas: alerta de smart money
// y compra de la wallet prioritaria.
func defaultStrategies() []StrategyConfig {
	return []StrategyConfig{
		{ID: "smart_money", Trigger: domain.TriggerSmartMoney, MinWalletCount: 3},
		{ID: "smartest_wallet", Trigger: domain.TriggerSmartestWallet, MinWalletCount: 1},
	}
}

func setStrategyDefaults(s *StrategyConfig) {
	if s.Trigger == "" {
		s.Trigger = s.ID
	}
	if s.TradeSize <= 0 {
		s.TradeSize = 0.005
	}
	if s.MaxOpenPositions <= 0 {
		s.MaxOpenPositions = 3
	}
	if s.MaxTotalExposure <= 0 {
		s.MaxTotalExposure = 0.03
	}
	if len(s.TPLevels) == 0 {
		s.TPLevels = []TPLevel{{Multiplier: 2, SellPercent: 50}, {Multiplier: 3, SellPercent: 100}}
	}
	if s.SLMultiplier <= 0 {
		s.SLMultiplier = 0.6
	}
	if s.LossStreakLimit <= 0 {
		s.LossStreakLimit = 3
	}
	if s.LossStreakCooldownMinutes <= 0 {
		s.LossStreakCooldownMinutes = 60
	}
}

// Validate rechaza configuraciones que romperían invariantes en runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Alert.Threshold < 1 {
		errs = append(errs, fmt.Errorf("alert.threshold must be >= 1"))
	}
	for _, h := range c.Alert.BlackoutHours {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Errorf("alert.blackout_hours: %d out of range", h))
		}
	}
	if _, err := time.LoadLocation(c.Alert.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("alert.timezone: %w", err))
	}
	if _, err := time.LoadLocation(c.Trading.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("trading.timezone: %w", err))
	}
	switch c.Trading.Mode {
	case "paper":
	case "live":
		if c.Trading.PrivateKey == "" {
			errs = append(errs, errors.New("trading: live mode without TRADING_PRIVATE_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("trading.mode: %q, want paper or live", c.Trading.Mode))
	}
	switch c.Storage.QueueDriver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage: postgres queue without DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.queue_driver: %q, want sqlite or postgres", c.Storage.QueueDriver))
	}

	seen := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("strategy %s: duplicate id", s.ID))
		}
		seen[s.ID] = true
		if c.Trading.Mode == "live" && s.TradeSize > c.Trading.MaxSingleTrade {
			errs = append(errs, fmt.Errorf("strategy %s: trade size %.4f above max single trade %.4f",
				s.ID, s.TradeSize, c.Trading.MaxSingleTrade))
		}
		if err := s.Domain(time.UTC).Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Domain convierte la estrategia al tipo del dominio.
func (s StrategyConfig) Domain(loc *time.Location) domain.StrategyConfig {
	levels := make([]domain.TPLevel, len(s.TPLevels))
	for i, l := range s.TPLevels {
		levels[i] = domain.TPLevel{Multiplier: l.Multiplier, SellPercent: l.SellPercent}
	}
	return domain.StrategyConfig{
		ID:                  s.ID,
		Trigger:             s.Trigger,
		TradeSize:           s.TradeSize,
		MaxOpenPositions:    s.MaxOpenPositions,
		MaxTotalExposure:    s.MaxTotalExposure,
		MaxDailyLoss:        s.MaxDailyLoss,
		MinMcap:             s.MinMcap,
		MaxMcap:             s.MaxMcap,
		MinWalletCount:      s.MinWalletCount,
		ActiveHours:         s.ActiveHours,
		Location:            loc,
		MinMomentumPct:      s.MinMomentumPct,
		TPLevels:            levels,
		SLMultiplier:        s.SLMultiplier,
		TimeStop:            time.Duration(s.TimeStopMinutes) * time.Minute,
		LossStreakLimit:     s.LossStreakLimit,
		LossStreakCooldown:  time.Duration(s.LossStreakCooldownMinutes) * time.Minute,
		RequireConfirmation: s.RequireConfirmation,
	}
}

// Seconds convierte un entero de config a time.Duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Location carga una zona horaria ya validada; cae a UTC.
func Location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConfirmTriggerSet devuelve los triggers con confirmación: los de la config más
// los de estrategias con require_confirmation.
func (c *Config) ConfirmTriggerSet() map[string]bool {
	out := make(map[string]bool)
	for _, t := range c.Queue.ConfirmTriggers {
		out[t] = true
	}
	for _, s := range c.Strategies {
		if s.RequireConfirmation {
			out[s.Trigger] = true
		}
	}
	return out
}

// ExpiryPolicy devuelve la política de expiración de la cola.
func (c *Config) ExpiryPolicy() domain.ExpiryPolicy {
	return domain.ExpiryPolicy{
		PendingMaxAge:      Seconds(c.Queue.PendingMaxAgeSeconds),
		ConfirmationMaxAge: Seconds(c.Queue.ConfirmationMaxAgeSeconds),
		ProcessingMaxAge:   Seconds(c.Queue.ProcessingMaxAgeSeconds),
	}
}

// LoadWallets lee la lista de wallets: un array JSON de direcciones, o un objeto
// {"wallets": [...]} cuyos elementos son direcciones u objetos con "address".
// Devuelve direcciones en minúsculas, sin duplicados.
func LoadWallets(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadWallets: read %q: %w", path, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped struct {
			Wallets []json.RawMessage `json:"wallets"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("config.LoadWallets: parse %q: %w", path, err)
		}
		raw = wrapped.Wallets
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for i, r := range raw {
		addr, err := walletAddress(r)
		if err != nil {
			return nil, fmt.Errorf("config.LoadWallets: entry %d: %w", i, err)
		}
		addr = strings.ToLower(strings.TrimSpace(addr))
		if !isHexAddress(addr) {
			return nil, fmt.Errorf("config.LoadWallets: entry %d: invalid address %q", i, addr)
		}
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out, nil
}

func walletAddress(r json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(r, &obj); err != nil {
		return "", err
	}
	return obj.Address, nil
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
