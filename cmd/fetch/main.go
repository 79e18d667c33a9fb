// Package main is a command line front end for the quote pipeline. It
// resolves, fetches and normalizes one instrument through a running gateway
// and prints the record as JSON. Results are cached in a local sqlite
// database between invocations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/quotegate/internal/clients/edge"
	"github.com/aristath/quotegate/internal/config"
	"github.com/aristath/quotegate/internal/database"
	"github.com/aristath/quotegate/internal/modules/quotes"
	"github.com/aristath/quotegate/internal/modules/resolver"
	"github.com/aristath/quotegate/internal/modules/timeseries"
	"github.com/aristath/quotegate/pkg/logger"
)

func main() {
	var (
		ticker   = flag.String("ticker", "", "instrument ticker (required)")
		exchange = flag.String("exchange", "MOEX", "exchange code (MOEX, SPB, NYSE, NASDAQ, LSE, XETRA, HKEX, FX)")
		group    = flag.String("group", "STOCK", "instrument group (STOCK, ETF, BOND, INDEX, CURRENCY, COMMODITY)")
		rng      = flag.String("range", "1y", "chart range (1mo, 3mo, 1y, 5y, max, ...)")
		refresh  = flag.Bool("refresh", false, "bypass the local result cache")
		timeout  = flag.Duration("timeout", 60*time.Second, "overall fetch timeout")
	)
	flag.Parse()

	if *ticker == "" {
		fmt.Fprintln(os.Stderr, "usage: fetch -ticker SBER [-exchange MOEX] [-group STOCK] [-range 1y]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := cacheDB.Migrate(quotes.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply cache schema")
	}

	store := quotes.NewSQLiteStore(cacheDB.Conn(), cfg.ResultTTL)
	resultCache := quotes.NewCache(store, cfg.ResultTTL, log)

	gatewayClient := edge.NewClient(cfg.GatewayURL, log)
	res := resolver.New(resolver.DefaultOverrides(), resolver.NewMemorySuccessStore(), log)
	pipeline := quotes.NewService(res, timeseries.New(log), gatewayClient, resultCache, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rec, err := pipeline.GetQuote(ctx, *ticker, *exchange, *group, *rng, *refresh)
	if err != nil {
		log.Fatal().Err(err).Msg("Fetch failed")
	}
	if rec == nil {
		fmt.Fprintln(os.Stderr, "no data for instrument")
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode record")
	}
}
