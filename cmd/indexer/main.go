package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/curvescan-backend/internal/config"
	"github.com/kjannette/curvescan-backend/internal/db"
	"github.com/kjannette/curvescan-backend/internal/discovery"
	"github.com/kjannette/curvescan-backend/internal/ethereum"
	"github.com/kjannette/curvescan-backend/internal/events"
	"github.com/kjannette/curvescan-backend/internal/external"
	"github.com/kjannette/curvescan-backend/internal/graduation"
	"github.com/kjannette/curvescan-backend/internal/indexer"
	"github.com/kjannette/curvescan-backend/internal/notifications"
	"github.com/kjannette/curvescan-backend/internal/repository"
)

const banner = `
╔══════════════════════════════════════╗
║     Curvescan Token Indexer v0.1     ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Database
	fmt.Printf("\n[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(cfg.DSN(), cfg.DBMaxConns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		pool.Close()
		fmt.Println("[DB] Connection pool closed")
	}()

	if err := db.Healthcheck(pool); err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Health check failed: %v\n", err)
		os.Exit(1)
	}

	if err := repository.Migrate(context.Background(), pool); err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Migration failed: %v\n", err)
		os.Exit(1)
	}

	// Chain access
	chain, err := ethereum.NewClient(cfg.EthereumAPIEndpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ETH] RPC dial failed: %v\n", err)
		os.Exit(1)
	}
	defer chain.Close()

	failures := ethereum.NewFailureCounters()
	reader := ethereum.NewReader(chain, failures)
	locator := ethereum.NewLocator(reader, chain, cfg.ScanWindowBlocks)

	discoveryCfg := discovery.DefaultConfig()
	discoveryCfg.SampleLogs = cfg.DiscoverySampleLogs
	discoveryCfg.TopK = cfg.DiscoveryTopK
	discoveryCfg.LaunchPathBonus = cfg.LaunchPathBonus
	discoveryCfg.BalanceBonus = cfg.BalanceBonus
	discoveryCfg.QuoteTouchCapRatio = cfg.QuoteTouchCapRatio
	discoveryCfg.MarketHintSignatures = cfg.MarketHintSignatures
	for _, a := range cfg.LaunchPathAddresses {
		discoveryCfg.LaunchPaths = append(discoveryCfg.LaunchPaths, common.HexToAddress(a))
	}

	var gecko *external.CoinGeckoClient
	if cfg.CoinGeckoAssetID != "" {
		gecko = external.NewCoinGeckoClient(cfg.CoinGeckoAssetID, cfg.CoinGeckoAPIKey,
			time.Duration(cfg.QuotePriceRefreshMinutes)*time.Minute)
	}

	bus := events.NewBus()

	deps := indexer.Deps{
		Cfg:      cfg,
		Chain:    chain,
		Reader:   reader,
		Locator:  locator,
		Discover: discovery.NewEngine(chain, reader, discoveryCfg),
		Detector: graduation.NewDetector(chain, cfg.PairHintSignatures),
		Projects: repository.NewProjectRepo(pool),
		Markets:  repository.NewMarketRepo(pool),
		Trades:   repository.NewTradeRepo(pool),
		Costs:    repository.NewAddressCostRepo(pool),
		Taxes:    repository.NewTaxRepo(pool),
		States:   repository.NewStateRepo(pool),
		Balances: repository.NewBalanceRepo(pool),
		Bus:      bus,
		Cache:    indexer.NewPriceCache(),
		Gecko:    gecko,
	}

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Alert forwarding
	notify := notifications.NewSender(cfg.WebhookURL, cfg.ServiceName)
	go notify.Listen(ctx, bus)

	service := indexer.NewService(deps)
	if err := service.StartAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[SERVICE] Start failed: %v\n", err)
		os.Exit(1)
	}
	for _, token := range cfg.TrackTokenAddresses {
		if _, err := service.Track(ctx, token, token, cfg.QuoteTokenAddress); err != nil {
			fmt.Fprintf(os.Stderr, "[SERVICE] Track %s failed: %v\n", token, err)
		}
	}

	notify.Send(fmt.Sprintf("Curvescan indexer started (quote %s)", cfg.QuoteTokenSymbol))
	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	service.Stop()
	fmt.Println("Shutdown complete")
}
