// Package config loads and validates the arbitrage engine's static
// configuration bundle (spec §6): venue credentials, the quote asset,
// profit/liquidity/slippage bounds, trading timings, the network
// preference and restriction tables consumed by internal/analyzer's
// Policy, and the DRY_RUN flag.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the root configuration bundle loaded from a YAML file (plus
// environment overrides) at process start.
type Config struct {
	App     AppConfig              `mapstructure:"app"`
	Trading TradingConfig          `mapstructure:"trading"`
	Venues  map[string]VenueConfig `mapstructure:"venues"`
	Network NetworkConfig          `mapstructure:"network"`
	Vault   VaultConfig            `mapstructure:"vault"`
	TradeLog TradeLogConfig        `mapstructure:"trade_log"`
}

// TradeLogConfig configures the optional mirror sinks layered on top of
// the mandatory JSONL trade log (§6 operator interface). Both mirrors are
// best-effort and disabled by default.
type TradeLogConfig struct {
	PostgresEnabled bool   `mapstructure:"postgres_enabled"`
	PostgresURL     string `mapstructure:"postgres_url"`

	NATSEnabled bool   `mapstructure:"nats_enabled"`
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
}

// AppConfig holds process-level settings unrelated to trading policy.
type AppConfig struct {
	Name         string `mapstructure:"name"`
	Environment  string `mapstructure:"environment"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	TradeLogPath string `mapstructure:"trade_log_path"`
}

// TradingConfig bundles the tunables spec §6 groups under "profit bounds",
// "liquidity", "trading", "timings" and the buy-leg policy flags from §9.
type TradingConfig struct {
	QuoteAsset string `mapstructure:"quote_asset"`
	DryRun     bool   `mapstructure:"dry_run"`

	MinGrossPct decimal.Decimal `mapstructure:"min_gross_pct"`
	MaxGrossPct decimal.Decimal `mapstructure:"max_gross_pct"`
	MinNetPct   decimal.Decimal `mapstructure:"min_net_pct"`

	MinLiquidity decimal.Decimal `mapstructure:"min_liquidity"`
	SlippagePct  decimal.Decimal `mapstructure:"slippage_pct"`

	TradeAmount       decimal.Decimal `mapstructure:"trade_amount"`
	MinEffectiveTrade decimal.Decimal `mapstructure:"min_effective_trade"`
	ReserveBuffer     decimal.Decimal `mapstructure:"reserve_buffer"`
	TransferFeeBuffer decimal.Decimal `mapstructure:"transfer_fee_buffer"`
	JITMinConversion  decimal.Decimal `mapstructure:"jit_min_conversion"`

	StabilityCycles   int           `mapstructure:"stability_cycles"`
	TopN              int           `mapstructure:"top_n"`
	CycleCount        int           `mapstructure:"cycle_count"` // 0 means run until canceled
	CycleSleep        time.Duration `mapstructure:"cycle_sleep"`
	PostTradeCooldown time.Duration `mapstructure:"post_trade_cooldown"`

	JITFundingWait         time.Duration `mapstructure:"jit_funding_wait"`
	JITCheckInterval       time.Duration `mapstructure:"jit_check_interval"`
	BaseAssetTransferWait  time.Duration `mapstructure:"base_asset_transfer_wait"`
	BaseAssetCheckInterval time.Duration `mapstructure:"base_asset_check_interval"`

	OrderWaitMaxAttempts int           `mapstructure:"order_wait_max_attempts"`
	OrderWaitDelay       time.Duration `mapstructure:"order_wait_delay"`

	JITLiquidAssets []string `mapstructure:"jit_liquid_assets"`

	PreferCostBasedBuy       bool     `mapstructure:"prefer_cost_based_buy"`
	CostBasedBuyDenylist     []string `mapstructure:"cost_based_buy_denylist"`
	RetryPartialBuyRemainder bool     `mapstructure:"retry_partial_buy_remainder"`
	HoldOnExhaustedOpenOrder bool     `mapstructure:"hold_on_exhausted_open_order"`
}

// VenueConfig holds one exchange's credentials and account-routing
// parameters (spec §6 "account-type parameters per venue").
type VenueConfig struct {
	Kind       string `mapstructure:"kind"` // "binance" or "sim"
	APIKey     string `mapstructure:"api_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Passphrase string `mapstructure:"passphrase"`
	Testnet    bool   `mapstructure:"testnet"`

	// FixturePath points at a SimFixture JSON file used to seed this
	// venue's paper-trading state at startup. Only consulted when
	// Kind == "sim".
	FixturePath string `mapstructure:"fixture_path"`

	// AccountParams carries venue-specific query parameters, keyed by
	// purpose ("trading", "withdrawal"), passed through to the gateway.
	AccountParams map[string]map[string]string `mapstructure:"account_params"`

	MinInternalTransfer  decimal.Decimal `mapstructure:"min_internal_transfer"`
	WithdrawalWalletType string          `mapstructure:"withdrawal_wallet_type"`
}

// VenueAsset is a (venue, asset) pair used by the blacklist tables.
type VenueAsset struct {
	Venue string `mapstructure:"venue"`
	Asset string `mapstructure:"asset"`
}

// NetworkPath is an (asset, from-venue, to-venue, network) tuple used by
// the path blacklist and whitelist tables.
type NetworkPath struct {
	Asset   string `mapstructure:"asset"`
	From    string `mapstructure:"from"`
	To      string `mapstructure:"to"`
	Network string `mapstructure:"network"`
}

// StaticFeeConfig is one operator-curated network fee record, trusted
// over live currency metadata (§4.3.1 step 3).
type StaticFeeConfig struct {
	Asset        string          `mapstructure:"asset"`
	Network      string          `mapstructure:"network"`
	FeeNative    decimal.Decimal `mapstructure:"fee_native"`
	FeeCurrency  string          `mapstructure:"fee_currency"`
	MinWithdraw  decimal.Decimal `mapstructure:"min_withdraw"`
	Active       bool            `mapstructure:"active"`
	Withdrawable bool            `mapstructure:"withdrawable"`
	Depositable  bool            `mapstructure:"depositable"`
}

// NetworkConfig bundles every input analyzer.Policy is assembled from
// (spec §6 preference lists, blacklists, estimated prices and default
// withdrawal fees). It carries no network-name alias table: names are
// normalized by the fixed patterns in analyzer.NormalizeNetworkName.
type NetworkConfig struct {
	GeneralPreference []string            `mapstructure:"general_preference"`
	TokenPreference   map[string][]string `mapstructure:"token_preference"`

	AssetUnavailableBlacklist []VenueAsset  `mapstructure:"asset_unavailable_blacklist"`
	GloballyBlacklistedAssets []VenueAsset  `mapstructure:"globally_blacklisted_assets"`
	PathBlacklist             []NetworkPath `mapstructure:"path_blacklist"`
	Whitelist                 []NetworkPath `mapstructure:"whitelist"`
	EnforceWhitelist          bool          `mapstructure:"enforce_whitelist"`

	// TokenNetworkRestriction keys are "venue:asset"; values are the
	// normalized network names that venue/asset pair is restricted to.
	TokenNetworkRestriction map[string][]string `mapstructure:"token_network_restriction"`

	StaticFees []StaticFeeConfig `mapstructure:"static_fees"`

	EstimatedPrices       map[string]decimal.Decimal `mapstructure:"estimated_prices"`
	DefaultWithdrawalFees map[string]decimal.Decimal `mapstructure:"default_withdrawal_fees"`
}

// Load reads configPath (YAML), applies defaults for anything unset, then
// layers SPOTARB_-prefixed environment overrides on top before validating
// the result. A missing config file is not fatal: defaults plus
// environment variables may be sufficient (e.g. in CI/DRY_RUN contexts).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("SPOTARB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToDecimalHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults seeds every tunable with a conservative default so a
// near-empty config file (or DRY_RUN smoke test) still produces a usable
// Config.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "spotarb")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")
	v.SetDefault("app.metrics_port", 9100)
	v.SetDefault("app.trade_log_path", "data/trades.jsonl")

	v.SetDefault("trading.quote_asset", "USDT")
	v.SetDefault("trading.dry_run", true)

	v.SetDefault("trading.min_gross_pct", "0.3")
	v.SetDefault("trading.max_gross_pct", "10")
	v.SetDefault("trading.min_net_pct", "0.1")

	v.SetDefault("trading.min_liquidity", "500")
	v.SetDefault("trading.slippage_pct", "0.5")

	v.SetDefault("trading.trade_amount", "100")
	v.SetDefault("trading.min_effective_trade", "20")
	v.SetDefault("trading.reserve_buffer", "5")
	v.SetDefault("trading.transfer_fee_buffer", "2")
	v.SetDefault("trading.jit_min_conversion", "5")

	v.SetDefault("trading.stability_cycles", 3)
	v.SetDefault("trading.top_n", 1)
	v.SetDefault("trading.cycle_count", 0)
	v.SetDefault("trading.cycle_sleep", "10s")
	v.SetDefault("trading.post_trade_cooldown", "30s")

	v.SetDefault("trading.jit_funding_wait", "2m")
	v.SetDefault("trading.jit_check_interval", "5s")
	v.SetDefault("trading.base_asset_transfer_wait", "6m")
	v.SetDefault("trading.base_asset_check_interval", "15s")

	v.SetDefault("trading.order_wait_max_attempts", 5)
	v.SetDefault("trading.order_wait_delay", "2s")

	v.SetDefault("trading.prefer_cost_based_buy", true)
	v.SetDefault("trading.retry_partial_buy_remainder", false)
	v.SetDefault("trading.hold_on_exhausted_open_order", false)

	v.SetDefault("network.general_preference", []string{"TRC20", "BEP20", "POLYGON", "ARBITRUM", "OPTIMISM", "SOLANA", "ERC20"})
	v.SetDefault("network.enforce_whitelist", false)

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.auth_method", "token")

	v.SetDefault("trade_log.postgres_enabled", false)
	v.SetDefault("trade_log.nats_enabled", false)
	v.SetDefault("trade_log.nats_subject", "spotarb.trades")
}

// stringToDecimalHookFunc lets viper/mapstructure populate
// decimal.Decimal fields from the strings or numbers a YAML file or
// environment variable naturally provides. Numeric values are
// re-stringified so the parse always goes through decimal.NewFromString,
// matching the module-wide "never NewFromFloat on external input"
// invariant.
func stringToDecimalHookFunc() mapstructure.DecodeHookFunc {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			s := data.(string)
			if s == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(s)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Float32, reflect.Float64:
			return decimal.NewFromString(fmt.Sprintf("%v", data))
		default:
			return data, nil
		}
	}
}
