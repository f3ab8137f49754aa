// Command arbengine boots the cross-exchange spot arbitrage engine: it
// loads and validates configuration, wires one gateway per configured
// venue, builds the scanner -> analyzer -> rebalancer -> executor
// pipeline over a shared balance snapshot, and hands the result to the
// scheduler's repeating cycle loop until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/analyzer"
	"github.com/axiomtrade/spotarb/internal/balancemgr"
	"github.com/axiomtrade/spotarb/internal/config"
	"github.com/axiomtrade/spotarb/internal/executor"
	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/metrics"
	"github.com/axiomtrade/spotarb/internal/rebalancer"
	"github.com/axiomtrade/spotarb/internal/scanner"
	"github.com/axiomtrade/spotarb/internal/scheduler"
	"github.com/axiomtrade/spotarb/internal/tradelog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the engine's YAML configuration file")
	verifyKeys := flag.Bool("verify-keys", false, "Verify venue API keys against their public endpoints at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbengine: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := config.NewLogger("arbengine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if cfg.Vault.Enabled {
		if err := config.LoadSecretsFromVault(ctx, cfg, cfg.Vault); err != nil {
			log.Fatal().Err(err).Msg("failed to load secrets from Vault")
		}
	}

	validatorOpts := config.DefaultValidatorOptions()
	validatorOpts.VerifyAPIKeys = *verifyKeys
	if err := config.NewValidator(cfg, validatorOpts).ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("startup configuration validation failed")
	}

	eng, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire engine")
	}
	defer eng.tradeLog.Close()

	metricsServer := metrics.NewServer(cfg.App.MetricsPort, logger)
	if err := metricsServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start metrics server")
	}

	runErr := eng.scheduler.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down metrics server")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatal().Err(runErr).Msg("scheduler exited with error")
	}

	logger.Info().Msg("arbengine terminated")
}

// engine bundles the constructed pipeline so main can own its shutdown.
type engine struct {
	scheduler *scheduler.Scheduler
	tradeLog  *tradelog.Store
}

// buildEngine wires every venue's gateway, loads its market/currency
// snapshot, and constructs the scanner -> analyzer -> rebalancer ->
// executor -> scheduler chain per the loaded configuration.
func buildEngine(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*engine, error) {
	alerts := gateway.NewAlertManager(logger, nil)

	venues := make(map[string]gateway.ExchangeGateway, len(cfg.Venues))
	for name, vc := range cfg.Venues {
		venueLog := config.NewVenueLogger(name)
		switch vc.Kind {
		case "binance":
			venues[name] = gateway.NewBinanceGateway(gateway.BinanceConfig{
				Venue:     name,
				APIKey:    vc.APIKey,
				SecretKey: vc.SecretKey,
				Testnet:   vc.Testnet,
			}, venueLog, alerts)
		case "sim":
			sim := gateway.NewSimGateway(name, gateway.DefaultFeeConfig())
			if vc.FixturePath != "" {
				fx, err := gateway.LoadFixture(vc.FixturePath)
				if err != nil {
					return nil, fmt.Errorf("venue %s: %w", name, err)
				}
				sim.SeedFromFixture(*fx)
			}
			venues[name] = sim
		default:
			return nil, fmt.Errorf("venue %s: unknown kind %q (must be \"binance\" or \"sim\")", name, vc.Kind)
		}
	}

	sc := scanner.New(venues, cfg.Trading.QuoteAsset, scanner.Bounds{
		MinGross: cfg.Trading.MinGrossPct,
		MaxGross: cfg.Trading.MaxGrossPct,
	}, logger)
	if err := sc.Init(ctx); err != nil {
		return nil, fmt.Errorf("scanner init: %w", err)
	}

	marketsCache := make(map[string]map[string]gateway.Market, len(venues))
	currenciesCache := make(map[string]map[string]gateway.Currency, len(venues))
	for name, gw := range venues {
		markets, err := gw.LoadMarkets(ctx)
		if err != nil {
			return nil, fmt.Errorf("venue %s: load markets: %w", name, err)
		}
		marketsCache[name] = markets

		currencies, err := gw.FetchCurrencies(ctx)
		if err != nil {
			return nil, fmt.Errorf("venue %s: fetch currencies: %w", name, err)
		}
		currenciesCache[name] = currencies
	}

	marketsOf := func(venue, symbol string) (gateway.Market, bool) {
		m, ok := marketsCache[venue][symbol]
		return m, ok
	}
	marketsByVenue := func(venue string) map[string]gateway.Market {
		return marketsCache[venue]
	}
	currencyOf := func(venue, asset string) (gateway.Currency, bool) {
		c, ok := currenciesCache[venue][asset]
		return c, ok
	}

	policy := buildPolicy(cfg)

	anCfg := analyzer.Config{
		TopN:          cfg.Trading.TopN,
		TradeNotional: cfg.Trading.TradeAmount,
		MinLiquidity:  cfg.Trading.MinLiquidity,
		SlippagePct:   cfg.Trading.SlippagePct,
	}
	priceOracle := buildPriceOracle(cfg)
	an := analyzer.New(cfg.Trading.StabilityCycles, policy, anCfg, venues, marketsOf, priceOracle, logger)

	var referenceVenue gateway.ExchangeGateway
	for _, gw := range venues {
		referenceVenue = gw
		break
	}
	oracle := balancemgr.NewTickerOracle(referenceVenue, cfg.Trading.CycleSleep)
	staticPrices := balancemgr.StaticPrices(cfg.Network.EstimatedPrices)
	balances := balancemgr.New(venues, oracle, cfg.Trading.QuoteAsset, nil, staticPrices, logger)

	minInternalTransfer := make(map[string]decimal.Decimal, len(cfg.Venues))
	for name, vc := range cfg.Venues {
		minInternalTransfer[name] = vc.MinInternalTransfer
	}

	rbCfg := rebalancer.Config{
		QuoteAsset:          cfg.Trading.QuoteAsset,
		MinLiquidity:        cfg.Trading.MinLiquidity,
		SlippagePct:         cfg.Trading.SlippagePct,
		MinInternalTransfer: minInternalTransfer,
		OrderWait: gateway.OrderWaitConfig{
			MaxAttempts: cfg.Trading.OrderWaitMaxAttempts,
			Delay:       cfg.Trading.OrderWaitDelay,
		},
		JITArrival: balancemgr.ArrivalWaitConfig{
			CheckInterval: cfg.Trading.JITCheckInterval,
			MaxWait:       cfg.Trading.JITFundingWait,
		},
		CrossVenueArrival: balancemgr.ArrivalWaitConfig{
			CheckInterval: cfg.Trading.BaseAssetCheckInterval,
			MaxWait:       cfg.Trading.BaseAssetTransferWait,
		},
	}
	rb := rebalancer.New(venues, balances, policy, priceOracle, marketsByVenue, currencyOf, rbCfg, logger)

	denylist := make(map[string]bool, len(cfg.Trading.CostBasedBuyDenylist))
	for _, v := range cfg.Trading.CostBasedBuyDenylist {
		denylist[v] = true
	}
	exCfg := executor.Config{
		QuoteAsset:               cfg.Trading.QuoteAsset,
		TradeAmount:              cfg.Trading.TradeAmount,
		MinEffectiveTrade:        cfg.Trading.MinEffectiveTrade,
		JITMinConversion:         cfg.Trading.JITMinConversion,
		ReserveBuffer:            cfg.Trading.ReserveBuffer,
		TransferFeeBuffer:        cfg.Trading.TransferFeeBuffer,
		JITLiquidAssets:          cfg.Trading.JITLiquidAssets,
		CostBasedBuyDenylist:     denylist,
		PreferCostBasedBuy:       cfg.Trading.PreferCostBasedBuy,
		RetryPartialBuyRemainder: cfg.Trading.RetryPartialBuyRemainder,
		HoldOnExhaustedOpenOrder: cfg.Trading.HoldOnExhaustedOpenOrder,
		OrderWait:                rbCfg.OrderWait,
		JITArrival:               rbCfg.JITArrival,
		CrossVenueArrival:        rbCfg.CrossVenueArrival,
	}
	ex := executor.New(venues, balances, rb, marketsOf, currencyOf, exCfg, alerts, logger)

	tl, err := tradelog.Open(cfg.App.TradeLogPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	if cfg.TradeLog.PostgresEnabled {
		sink, err := tradelog.NewPostgresSink(ctx, cfg.TradeLog.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("trade log postgres sink: %w", err)
		}
		tl.AddSink(sink)
	}
	if cfg.TradeLog.NATSEnabled {
		sink, err := tradelog.NewNATSSink(cfg.TradeLog.NATSURL, cfg.TradeLog.NATSSubject)
		if err != nil {
			return nil, fmt.Errorf("trade log NATS sink: %w", err)
		}
		tl.AddSink(sink)
	}

	sch := scheduler.New(sc, an, ex, tl, scheduler.Config{
		CycleSleep:        cfg.Trading.CycleSleep,
		PostTradeCooldown: cfg.Trading.PostTradeCooldown,
		CycleCount:        cfg.Trading.CycleCount,
	}, logger)

	return &engine{scheduler: sch, tradeLog: tl}, nil
}

// buildPolicy assembles an analyzer.Policy from the configured network
// tables (§6 preference lists, blacklists, whitelist, token network
// restrictions and static fees).
func buildPolicy(cfg *config.Config) *analyzer.Policy {
	policy := analyzer.NewPolicy()
	policy.GeneralPreference = cfg.Network.GeneralPreference
	policy.TokenPreference = cfg.Network.TokenPreference
	policy.EnforceWhitelist = cfg.Network.EnforceWhitelist

	for _, va := range cfg.Network.AssetUnavailableBlacklist {
		policy.BlacklistAssetUnavailable(va.Venue, va.Asset)
	}
	for _, va := range cfg.Network.GloballyBlacklistedAssets {
		policy.BlacklistGlobally(va.Venue, va.Asset)
	}
	for _, p := range cfg.Network.PathBlacklist {
		policy.BlacklistPath(p.Asset, p.From, p.To, p.Network)
	}
	for _, p := range cfg.Network.Whitelist {
		policy.AllowPath(p.Asset, p.From, p.To, p.Network)
	}
	for key, networks := range cfg.Network.TokenNetworkRestriction {
		venue, asset, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		policy.RestrictTokenNetworks(venue, asset, networks...)
	}
	for _, fee := range cfg.Network.StaticFees {
		policy.SetStaticFee(fee.Asset, analyzer.StaticFeeEntry{
			NormalizedName: fee.Network,
			FeeNative:      fee.FeeNative,
			FeeCurrency:    fee.FeeCurrency,
			MinWithdraw:    fee.MinWithdraw,
			Active:         fee.Active,
			Withdrawable:   fee.Withdrawable,
			Depositable:    fee.Depositable,
		})
	}

	return policy
}

// buildPriceOracle returns an analyzer.PriceOracle backed only by the
// operator-curated estimated-price table (§4.3.1). No venue ticker is
// consulted: an asset missing from the table has no price.
func buildPriceOracle(cfg *config.Config) analyzer.PriceOracle {
	prices := cfg.Network.EstimatedPrices
	return func(_ context.Context, asset string) (decimal.Decimal, bool) {
		p, ok := prices[asset]
		return p, ok
	}
}
