package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gigledger/config"
	"gigledger/core"
	"gigledger/crypto"
	"gigledger/observability/logging"
	"gigledger/rpc"
	"gigledger/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memFlag := flag.Bool("mem", false, "DEV ONLY: run against an in-memory database, losing all state on exit")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("GIG_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup(cfg.ServiceName, firstNonEmpty(env, cfg.Environment))

	var db storage.Database
	if *memFlag {
		logger.Warn("running with in-memory storage, state will not survive a restart")
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	node := core.NewNode(db)

	if err := applyGenesisAllocation(node, cfg.GenesisAllocation); err != nil {
		logger.Error("Failed to apply genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(node, rpc.Options{
		RateLimitPerMin: cfg.RateLimitPerMin,
		RateLimitBurst:  cfg.RateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("JSON-RPC server listening", slog.String("addr", cfg.RPCAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// applyGenesisAllocation seeds account balances from a comma-separated list of
// "address:amount" pairs. Intended for local development and test networks;
// minting the same allocation twice doubles the balances, so operators should
// clear it from the config once the data directory exists.
func applyGenesisAllocation(node *core.Node, allocation string) error {
	allocation = strings.TrimSpace(allocation)
	if allocation == "" {
		return nil
	}
	for _, pair := range strings.Split(allocation, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("genesis allocation entry %q must be address:amount", pair)
		}
		decoded, err := crypto.DecodeAddress(strings.TrimSpace(parts[0]))
		if err != nil {
			return fmt.Errorf("genesis allocation entry %q: %w", pair, err)
		}
		amount, err := parseAllocationAmount(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("genesis allocation entry %q: %w", pair, err)
		}
		var addr [20]byte
		copy(addr[:], decoded.Bytes())
		if err := node.Mint(addr, amount); err != nil {
			return fmt.Errorf("genesis allocation entry %q: %w", pair, err)
		}
	}
	return nil
}

func parseAllocationAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %q", value)
	}
	return amount, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
