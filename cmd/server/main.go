// Package main runs the graph explorer HTTP service: transaction
// expansion, wallet path lookup, viewport persistence, live account
// tracking and Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-graph-explorer/internal/cache"
	"solana-graph-explorer/internal/explorer"
	"solana-graph-explorer/internal/fetch"
	"solana-graph-explorer/internal/observability"
	"solana-graph-explorer/internal/ratelimit"
	"solana-graph-explorer/internal/rpcpool"
	"solana-graph-explorer/internal/solana"
	"solana-graph-explorer/internal/storage"
	chstore "solana-graph-explorer/internal/storage/clickhouse"
	"solana-graph-explorer/internal/storage/memory"
	"solana-graph-explorer/internal/storage/migrations"
	pgstore "solana-graph-explorer/internal/storage/postgres"
)

func main() {
	loadEnvFile()

	endpoints := flag.String("rpc-endpoints", os.Getenv("SOLANA_RPC_ENDPOINTS"), "Comma-separated Solana RPC HTTP endpoints")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint for account tracking (optional)")
	listenAddr := flag.String("listen", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	maxDepth := flag.Int("max-depth", explorer.DefaultMaxDepth, "Traversal depth limit")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (optional)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	debug := flag.Bool("debug", false, "Verbose development logging")

	flag.Parse()

	logger := newLogger(*debug)
	defer logger.Sync()

	if *endpoints == "" {
		logger.Fatal("--rpc-endpoints is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	var subscriber solana.LogSubscriber
	if *wsEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Fatal("connect websocket", zap.String("endpoint", *wsEndpoint), zap.Error(err))
		}
		defer ws.Close()
		subscriber = ws
		logger.Info("account tracking enabled", zap.String("endpoint", *wsEndpoint))
	}

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
		Pool:       pool,
		Scheduler:  scheduler,
		Paths:      cache.NewWalletPathCache(pathStore, logger),
		Viewports:  cache.NewViewportCache(snapshotStore, logger),
		Archive:    archiveStore,
		Subscriber: subscriber,
		MaxDepth:   *maxDepth,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("build engine", zap.Error(err))
	}
	defer engine.Close()

	srv := &server{
		engine:    engine,
		pool:      pool,
		scheduler: scheduler,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /expand", srv.handleExpand)
	mux.HandleFunc("POST /focus", srv.handleFocus)
	mux.HandleFunc("POST /track", srv.handleTrack)
	mux.HandleFunc("POST /tracking/stop", srv.handleStopTracking)
	mux.HandleFunc("POST /viewport", srv.handleViewport)
	mux.HandleFunc("GET /graph", srv.handleGraph)
	mux.HandleFunc("GET /progress", srv.handleProgress)
	mux.HandleFunc("GET /path", srv.handlePath)
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.Handle("GET /metrics", observability.Handler())

	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go srv.drainEvents(ctx)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", *listenAddr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}
}

type server struct {
	engine    *explorer.Engine
	pool      *rpcpool.Pool
	scheduler *fetch.Scheduler
	logger    *zap.Logger
}

// drainEvents consumes engine events, logging warnings and keeping the
// Prometheus gauges current.
func (s *server) drainEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.engine.Events():
			if !ok {
				return
			}
			if ev.Type == explorer.EventWarning {
				s.logger.Warn("engine warning",
					zap.String("severity", string(ev.Severity)),
					zap.String("message", ev.Message))
			}
			queued, _, _, _ := s.scheduler.Stats()
			observability.UpdateQueueDepth(queued)
			nodes, edges := s.engine.Graph().Counts()
			observability.UpdateGraphSize(nodes, edges)
		}
	}
}

type expandRequest struct {
	Signature string `json:"signature"`
}

func (s *server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	found, err := s.engine.ExpandTransactionGraph(r.Context(), req.Signature)
	if err != nil {
		observability.RecordExpansion("error", time.Since(start).Seconds())
		s.logger.Error("expansion failed", zap.String("signature", req.Signature), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	outcome := "found"
	if !found {
		outcome = "not_found"
	}
	observability.RecordExpansion(outcome, time.Since(start).Seconds())
	observability.UpdateHealthyEndpoints(s.pool.Healthy(r.Context()))

	writeJSON(w, http.StatusOK, map[string]any{"found": found})
}

type focusRequest struct {
	Signature string `json:"signature"`
}

func (s *server) handleFocus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "signature is required")
		return
	}
	s.engine.Focus(req.Signature)
	writeJSON(w, http.StatusAccepted, map[string]any{"focused": req.Signature})
}

type trackRequest struct {
	Address string `json:"address"`
}

func (s *server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if err := s.engine.TrackAccount(req.Address); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracking": req.Address})
}

func (s *server) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	s.engine.StopTracking(req.Address)
	writeJSON(w, http.StatusOK, map[string]any{"stopped": req.Address})
}

type viewportRequest struct {
	Signature string  `json:"signature"`
	Zoom      float64 `json:"zoom"`
	PanX      float64 `json:"panX"`
	PanY      float64 `json:"panY"`
}

func (s *server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "signature is required")
		return
	}
	s.engine.SaveViewport(r.Context(), req.Signature, req.Zoom, req.PanX, req.PanY)
	writeJSON(w, http.StatusOK, map[string]any{"saved": req.Signature})
}

func (s *server) handleGraph(w http.ResponseWriter, r *http.Request) {
	nodes, edges := s.engine.Graph().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"edges": edges,
	})
}

func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	queued, loaded, dropped, discovered := s.scheduler.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"progress":   s.engine.Progress(),
		"queued":     queued,
		"loaded":     loaded,
		"dropped":    dropped,
		"discovered": discovered,
	})
}

func (s *server) handlePath(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		writeError(w, http.StatusBadRequest, "source and target are required")
		return
	}

	path, err := s.engine.FindWalletPath(r.Context(), source, target)
	if err != nil {
		if errors.Is(err, fetch.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, path)
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	healthy := s.pool.Healthy(r.Context())
	observability.UpdateHealthyEndpoints(healthy)
	status := http.StatusOK
	if healthy == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"healthyEndpoints": healthy})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// The status line is already written; nothing left to do.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
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

// buildStores wires the optional persistent tiers. Missing DSNs degrade
// to in-memory stores so the service works without infrastructure.
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

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
