package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for configuration validation
type ValidatorOptions struct {
	VerifyConnectivity bool // Check that each live venue's public endpoint is reachable
	VerifyAPIKeys      bool // Verify API keys with external services
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		VerifyAPIKeys:      false, // enabled with --verify-keys flag
		Timeout:            5 * time.Second,
	}
}

// Validator handles configuration validation at startup
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a new configuration validator
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	return &Validator{config: config, options: options}
}

// ValidateStartup performs comprehensive startup validation. This should
// be called before the scheduler starts.
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Info().Msg("Validating configuration...")

	if err := v.validateProductionRequirements(); err != nil {
		return fmt.Errorf("production requirements validation failed: %w", err)
	}

	if err := v.validateEnvironmentVariables(); err != nil {
		return fmt.Errorf("environment variable validation failed: %w", err)
	}

	if err := v.validateAPIKeysPresence(); err != nil {
		return fmt.Errorf("API key validation failed: %w", err)
	}

	if v.options.VerifyConnectivity {
		if err := v.checkVenueConnectivity(ctx); err != nil {
			return fmt.Errorf("venue connectivity check failed: %w", err)
		}
	}

	if v.options.VerifyAPIKeys {
		if err := v.verifyAPIKeys(ctx); err != nil {
			return fmt.Errorf("API key verification failed: %w", err)
		}
	}

	log.Info().Msg("Configuration validation completed successfully")
	return nil
}

// validateProductionRequirements checks production-specific security requirements
func (v *Validator) validateProductionRequirements() error {
	if v.config.App.Environment != "production" {
		log.Info().Str("environment", v.config.App.Environment).Msg("Non-production environment detected, skipping production requirements")
		return nil
	}

	log.Info().Msg("Production environment detected - enforcing production security requirements")

	var errs []string

	vaultEnabled := strings.ToLower(os.Getenv("VAULT_ENABLED"))
	if vaultEnabled != "true" && vaultEnabled != "1" && !v.config.Vault.Enabled {
		errs = append(errs, "Vault must be enabled in production (set vault.enabled or VAULT_ENABLED=true)")
	}

	if v.config.Vault.Enabled {
		vaultAddr := os.Getenv("VAULT_ADDR")
		if vaultAddr == "" && v.config.Vault.Address == "" {
			errs = append(errs, "VAULT_ADDR must be set when Vault is enabled")
		}

		switch v.config.Vault.AuthMethod {
		case "kubernetes":
			tokenPath := "/var/run/secrets/kubernetes.io/serviceaccount/token"
			if _, err := os.Stat(tokenPath); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Kubernetes service account token not found at %s", tokenPath))
			}
		case "token":
			if v.config.Vault.Token == "" && os.Getenv("VAULT_TOKEN") == "" {
				errs = append(errs, "VAULT_TOKEN must be set when using token auth method")
			}
		case "approle":
			if os.Getenv("VAULT_ROLE_ID") == "" || os.Getenv("VAULT_SECRET_ID") == "" {
				errs = append(errs, "VAULT_ROLE_ID and VAULT_SECRET_ID must be set when using approle auth method")
			}
		default:
			errs = append(errs, fmt.Sprintf("Unknown vault.auth_method: %s (must be kubernetes, token, or approle)", v.config.Vault.AuthMethod))
		}
	}

	if v.config.Trading.DryRun {
		log.Warn().Msg("DRY_RUN is enabled in production. Ensure this is intentional.")
	}

	if len(errs) > 0 {
		var sb strings.Builder
		sb.WriteString("\n==========================================================\n")
		sb.WriteString("PRODUCTION SECURITY REQUIREMENTS NOT MET\n")
		sb.WriteString("==========================================================\n\n")
		for i, e := range errs {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, e))
		}
		sb.WriteString("\nProduction deployment cannot proceed until these issues are resolved.\n")
		sb.WriteString("==========================================================\n")
		return fmt.Errorf("%s", sb.String())
	}

	log.Info().Msg("Production security requirements validated successfully")
	return nil
}

// validateEnvironmentVariables checks that required environment variables are set
func (v *Validator) validateEnvironmentVariables() error {
	requiredVars := make(map[string]string)

	if !v.config.Trading.DryRun {
		for name, venue := range v.config.Venues {
			if venue.Kind != "binance" {
				continue
			}
			if venue.APIKey == "" {
				requiredVars[fmt.Sprintf("%s_API_KEY", strings.ToUpper(name))] = fmt.Sprintf("%s API key is required outside DRY_RUN", name)
			}
			if venue.SecretKey == "" {
				requiredVars[fmt.Sprintf("%s_API_SECRET", strings.ToUpper(name))] = fmt.Sprintf("%s API secret is required outside DRY_RUN", name)
			}
		}
	}

	if len(requiredVars) > 0 {
		var sb strings.Builder
		sb.WriteString("Required environment variables are missing:\n\n")
		for varName, description := range requiredVars {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", varName, description))
		}
		sb.WriteString("\nPlease set these environment variables and try again.\n")
		return fmt.Errorf("%s", sb.String())
	}

	log.Info().Msg("Environment variables validation passed")
	return nil
}

// validateAPIKeysPresence checks that API keys are present, well-formed, and
// not placeholder values.
func (v *Validator) validateAPIKeysPresence() error {
	var errs []string

	for name, venue := range v.config.Venues {
		if venue.Kind != "binance" || v.config.Trading.DryRun {
			continue
		}

		if venue.APIKey == "" {
			errs = append(errs, fmt.Sprintf("%s API key is empty", name))
		} else if len(venue.APIKey) < 16 {
			errs = append(errs, fmt.Sprintf("%s API key is too short (minimum 16 characters)", name))
		} else if isPlaceholderValue(venue.APIKey) {
			errs = append(errs, fmt.Sprintf("%s API key appears to be a placeholder value", name))
		}

		if venue.SecretKey == "" {
			errs = append(errs, fmt.Sprintf("%s API secret is empty", name))
		} else if len(venue.SecretKey) < 16 {
			errs = append(errs, fmt.Sprintf("%s API secret is too short (minimum 16 characters)", name))
		} else if isPlaceholderValue(venue.SecretKey) {
			errs = append(errs, fmt.Sprintf("%s API secret appears to be a placeholder value", name))
		}
	}

	if len(errs) > 0 {
		var sb strings.Builder
		sb.WriteString("API key validation failed:\n\n")
		for _, e := range errs {
			sb.WriteString(fmt.Sprintf("  - %s\n", e))
		}
		sb.WriteString("\nPlease provide valid API keys and try again.\n")
		return fmt.Errorf("%s", sb.String())
	}

	log.Info().Msg("API key presence validation passed")
	return nil
}

// venuePingURL maps a venue kind to a lightweight, unauthenticated
// connectivity-check endpoint.
var venuePingURL = map[string]string{
	"binance": "https://api.binance.com/api/v3/ping",
}

// checkVenueConnectivity pings each live (non-sim) venue's public endpoint
// with a bounded timeout.
func (v *Validator) checkVenueConnectivity(ctx context.Context) error {
	log.Info().Msg("Checking venue connectivity...")

	for name, venue := range v.config.Venues {
		url, ok := venuePingURL[venue.Kind]
		if !ok {
			continue
		}
		if venue.Testnet {
			url = "https://testnet.binance.vision/api/v3/ping"
		}

		reqCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to build request for venue %s: %w", name, err)
		}

		resp, err := http.DefaultClient.Do(req)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to reach venue %s: %w\n\nPlease check:\n  - The venue is reachable\n  - Network connectivity is available", name, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("venue %s ping failed with status: %d", name, resp.StatusCode)
		}

		log.Info().Str("venue", name).Msg("Venue connectivity check passed")
	}

	return nil
}

// verifyAPIKeys pings the public, unauthenticated endpoint of each venue
// kind for every venue that has both credentials configured (never a
// mutating request). The credentials themselves are not sent, so a wrong
// key is not detected here.
func (v *Validator) verifyAPIKeys(ctx context.Context) error {
	log.Info().Msg("Verifying API keys (dry run)...")

	var errs []string

	for name, venue := range v.config.Venues {
		if venue.APIKey == "" || venue.SecretKey == "" {
			continue
		}

		log.Info().Str("venue", name).Msg("Verifying venue API key...")

		if url, ok := venuePingURL[venue.Kind]; ok {
			reqCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
			req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
			if err != nil {
				cancel()
				errs = append(errs, fmt.Sprintf("%s: failed to build request: %v", name, err))
				continue
			}
			resp, err := http.DefaultClient.Do(req)
			cancel()
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				continue
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs = append(errs, fmt.Sprintf("%s: ping failed with status %d", name, resp.StatusCode))
				continue
			}
			log.Info().Str("venue", name).Msg("Venue connectivity verified")
		} else {
			log.Warn().Str("venue", name).Msg("API key verification not implemented for this venue kind")
		}
	}

	if len(errs) > 0 {
		var sb strings.Builder
		sb.WriteString("API key verification failed:\n\n")
		for _, e := range errs {
			sb.WriteString(fmt.Sprintf("  - %s\n", e))
		}
		sb.WriteString("\nPlease check your API keys and try again.\n")
		return fmt.Errorf("%s", sb.String())
	}

	log.Info().Msg("API key verification completed successfully")
	return nil
}

// isPlaceholderValue checks if a value is likely a placeholder
func isPlaceholderValue(value string) bool {
	lowerValue := strings.ToLower(value)
	placeholders := []string{
		"your_api_key",
		"your_secret",
		"changeme",
		"placeholder",
		"example",
		"test",
		"sample",
		"demo",
	}

	for _, placeholder := range placeholders {
		if strings.Contains(lowerValue, placeholder) {
			return true
		}
	}

	return false
}
