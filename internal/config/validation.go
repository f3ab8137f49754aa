package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation. Per spec §7,
// "fewer than 2 usable venues" and "no common pairs" are fatal at the
// Configuration level; this only checks the former (the latter depends on
// live load_markets results and is checked at wiring time in cmd/arbengine).
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateTrading()...)
	errors = append(errors, c.validateVenues()...)
	errors = append(errors, c.validateNetwork()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{Field: "app.name", Message: "Application name is required"})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{Field: "app.environment", Message: "Environment is required (development, staging, or production)"})
	} else {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{Field: "app.log_level", Message: "Log level is required (debug, info, warn, error)"})
	}

	if c.App.MetricsPort < 1 || c.App.MetricsPort > 65535 {
		errors = append(errors, ValidationError{
			Field:   "app.metrics_port",
			Message: fmt.Sprintf("Invalid metrics_port %d. Must be between 1-65535", c.App.MetricsPort),
		})
	}

	if c.App.TradeLogPath == "" {
		errors = append(errors, ValidationError{Field: "app.trade_log_path", Message: "Trade log path is required"})
	}

	return errors
}

func (c *Config) validateTrading() ValidationErrors {
	var errors ValidationErrors
	t := c.Trading

	if t.QuoteAsset == "" {
		errors = append(errors, ValidationError{Field: "trading.quote_asset", Message: "Quote asset is required"})
	}

	if t.MinGrossPct.IsNegative() {
		errors = append(errors, ValidationError{Field: "trading.min_gross_pct", Message: "Must be non-negative"})
	}
	if t.MaxGrossPct.LessThan(t.MinGrossPct) {
		errors = append(errors, ValidationError{Field: "trading.max_gross_pct", Message: "Must be >= min_gross_pct"})
	}
	if t.MinNetPct.IsNegative() {
		errors = append(errors, ValidationError{Field: "trading.min_net_pct", Message: "Must be non-negative"})
	}

	if t.MinLiquidity.IsNegative() {
		errors = append(errors, ValidationError{Field: "trading.min_liquidity", Message: "Must be non-negative"})
	}
	if t.SlippagePct.IsNegative() {
		errors = append(errors, ValidationError{Field: "trading.slippage_pct", Message: "Must be non-negative"})
	}

	if !t.TradeAmount.IsPositive() {
		errors = append(errors, ValidationError{Field: "trading.trade_amount", Message: "Must be greater than 0"})
	}
	if t.MinEffectiveTrade.IsNegative() {
		errors = append(errors, ValidationError{Field: "trading.min_effective_trade", Message: "Must be non-negative"})
	}
	if t.MinEffectiveTrade.GreaterThan(t.TradeAmount) {
		errors = append(errors, ValidationError{Field: "trading.min_effective_trade", Message: "Must not exceed trade_amount"})
	}

	if t.StabilityCycles < 1 {
		errors = append(errors, ValidationError{Field: "trading.stability_cycles", Message: "Must be at least 1"})
	}
	if t.TopN < 1 {
		errors = append(errors, ValidationError{Field: "trading.top_n", Message: "Must be at least 1"})
	}
	if t.CycleCount < 0 {
		errors = append(errors, ValidationError{Field: "trading.cycle_count", Message: "Must be non-negative (0 means run forever)"})
	}
	if t.CycleSleep <= 0 {
		errors = append(errors, ValidationError{Field: "trading.cycle_sleep", Message: "Must be a positive duration"})
	}

	if t.JITFundingWait <= 0 {
		errors = append(errors, ValidationError{Field: "trading.jit_funding_wait", Message: "Must be a positive duration"})
	}
	if t.BaseAssetTransferWait < 3*t.JITFundingWait {
		errors = append(errors, ValidationError{
			Field:   "trading.base_asset_transfer_wait",
			Message: "Must be at least 3x jit_funding_wait (§4.5.1 distinct-constants requirement)",
		})
	}

	if t.OrderWaitMaxAttempts < 1 {
		errors = append(errors, ValidationError{Field: "trading.order_wait_max_attempts", Message: "Must be at least 1"})
	}

	return errors
}

func (c *Config) validateVenues() ValidationErrors {
	var errors ValidationErrors

	if len(c.Venues) < 2 {
		errors = append(errors, ValidationError{
			Field:   "venues",
			Message: "At least 2 usable venues are required (spec §7: fewer than 2 is a fatal configuration error)",
		})
	}

	for name, venue := range c.Venues {
		switch venue.Kind {
		case "binance", "sim", "":
		default:
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("venues.%s.kind", name),
				Message: fmt.Sprintf("Unknown venue kind '%s'. Must be 'binance' or 'sim'", venue.Kind),
			})
		}

		if venue.Kind == "binance" && !c.Trading.DryRun {
			if venue.APIKey == "" {
				errors = append(errors, ValidationError{Field: fmt.Sprintf("venues.%s.api_key", name), Message: "API key is required for live trading"})
			}
			if venue.SecretKey == "" {
				errors = append(errors, ValidationError{Field: fmt.Sprintf("venues.%s.secret_key", name), Message: "Secret key is required for live trading"})
			}
		}

		if venue.MinInternalTransfer.IsNegative() {
			errors = append(errors, ValidationError{Field: fmt.Sprintf("venues.%s.min_internal_transfer", name), Message: "Must be non-negative"})
		}
	}

	return errors
}

func (c *Config) validateNetwork() ValidationErrors {
	var errors ValidationErrors

	for _, entry := range c.Network.StaticFees {
		if entry.Asset == "" || entry.Network == "" {
			errors = append(errors, ValidationError{Field: "network.static_fees", Message: "Each static fee entry requires asset and network"})
		}
		if entry.FeeNative.IsNegative() {
			errors = append(errors, ValidationError{
				Field:   "network.static_fees",
				Message: fmt.Sprintf("Static fee for %s/%s must be non-negative", entry.Asset, entry.Network),
			})
		}
	}

	if c.Network.EnforceWhitelist && len(c.Network.Whitelist) == 0 {
		errors = append(errors, ValidationError{
			Field:   "network.whitelist",
			Message: "enforce_whitelist is set but the whitelist is empty — no path would ever be allowed",
		})
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment != "production" {
		return errors
	}

	if !c.Trading.DryRun {
		secretErrors := ValidateProductionSecrets(c)
		errors = append(errors, secretErrors...)
	}

	for name, venue := range c.Venues {
		if venue.Testnet {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("venues.%s.testnet", name),
				Message: "Testnet mode must be disabled in production",
			})
		}
	}

	return errors
}

// ValidateAndLoad loads and validates configuration. configPath can be
// empty, in which case no file is read and only defaults plus SPOTARB_
// environment overrides apply.
func ValidateAndLoad(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
