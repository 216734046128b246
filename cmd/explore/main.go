// Package main provides a one-shot expansion: it builds the transaction
// graph around a seed signature and prints a summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"solana-graph-explorer/internal/cache"
	"solana-graph-explorer/internal/explorer"
	"solana-graph-explorer/internal/fetch"
	"solana-graph-explorer/internal/ratelimit"
	"solana-graph-explorer/internal/rpcpool"
	"solana-graph-explorer/internal/storage"
	chstore "solana-graph-explorer/internal/storage/clickhouse"
	"solana-graph-explorer/internal/storage/memory"
	"solana-graph-explorer/internal/storage/migrations"
	pgstore "solana-graph-explorer/internal/storage/postgres"
)

func main() {
	loadEnvFile()

	endpoints := flag.String("rpc-endpoints", os.Getenv("SOLANA_RPC_ENDPOINTS"), "Comma-separated Solana RPC HTTP endpoints")
	signature := flag.String("signature", "", "Seed transaction signature to expand")
	maxDepth := flag.Int("max-depth", explorer.DefaultMaxDepth, "Traversal depth limit")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (optional)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall expansion timeout")
	debug := flag.Bool("debug", false, "Verbose development logging")

	flag.Parse()

	logger := newLogger(*debug)
	defer logger.Sync()

	if *endpoints == "" {
		logger.Fatal("--rpc-endpoints is required")
	}
	if *signature == "" {
		logger.Fatal("--signature is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	limiter := ratelimit.New(ratelimit.Config{Logger: logger})
	defer limiter.Close()

	pool, err := rpcpool.New(rpcpool.Config{
		Endpoints: splitList(*endpoints),
		Limiter:   limiter,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("build rpc pool", zap.Error(err))
	}
	defer pool.Close()

	pathStore, snapshotStore, archiveStore, closeStores, err := buildStores(ctx, *postgresDSN, *clickhouseDSN, logger)
	if err != nil {
		logger.Fatal("build stores", zap.Error(err))
	}
	defer closeStores()

	resolver := fetch.NewTieredResolver(
		fetch.NewTokenTransferSource(pool, logger),
		fetch.NewHistorySource(pool, logger),
		logger,
	)
	scheduler, err := fetch.NewScheduler(fetch.SchedulerConfig{
		Resolver: resolver,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("build scheduler", zap.Error(err))
	}

	engine, err := explorer.New(explorer.Options{
		Pool:      pool,
		Scheduler: scheduler,
		Paths:     cache.NewWalletPathCache(pathStore, logger),
		Viewports: cache.NewViewportCache(snapshotStore, logger),
		Archive:   archiveStore,
		MaxDepth:  *maxDepth,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("build engine", zap.Error(err))
	}
	defer engine.Close()

	go func() {
		for ev := range engine.Events() {
			switch ev.Type {
			case explorer.EventWarning:
				logger.Warn("engine warning",
					zap.String("severity", string(ev.Severity)),
					zap.String("message", ev.Message))
			case explorer.EventProgress:
				logger.Debug("progress", zap.Float64("percent", ev.Progress))
			}
		}
	}()

	start := time.Now()
	found, err := engine.ExpandTransactionGraph(ctx, *signature)
	if err != nil {
		logger.Fatal("expansion failed", zap.String("signature", *signature), zap.Error(err))
	}
	if !found {
		logger.Fatal("transaction not found", zap.String("signature", *signature))
	}

	nodes, edges := engine.Graph().Counts()
	accounts, loaded := engine.Graph().AccountStats()
	queued, _, dropped, discovered := scheduler.Stats()

	logger.Info("expansion complete",
		zap.String("signature", *signature),
		zap.Duration("took", time.Since(start)),
		zap.Int("nodes", nodes),
		zap.Int("edges", edges),
		zap.Int("accounts", accounts),
		zap.Int("loaded", loaded),
		zap.Int("queued", queued),
		zap.Int("dropped", dropped),
		zap.Int("discovered", discovered))

	fmt.Printf("graph for %s: %d nodes, %d edges, %d/%d accounts loaded\n",
		*signature, nodes, edges, loaded, accounts)
}

// buildStores wires the optional persistent tiers. Missing DSNs degrade
// to in-memory stores so the tool works without infrastructure.
func buildStores(ctx context.Context, postgresDSN, clickhouseDSN string, logger *zap.Logger) (
	storage.WalletPathStore, storage.GraphSnapshotStore, storage.TransferArchiveStore, func(), error,
) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var pathStore storage.WalletPathStore = memory.NewWalletPathStore()
	var snapshotStore storage.GraphSnapshotStore = memory.NewGraphSnapshotStore()
	var archiveStore storage.TransferArchiveStore = memory.NewTransferArchiveStore()

	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			closeAll()
			return nil, nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		pathStore = pgstore.NewWalletPathStore(pool)
		snapshotStore = pgstore.NewGraphSnapshotStore(pool)
		logger.Info("postgres stores enabled")
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			closeAll()
			return nil, nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		archiveStore = chstore.NewTransferArchiveStore(conn)
		logger.Info("clickhouse archive enabled")
	}

	return pathStore, snapshotStore, archiveStore, closeAll, nil
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
