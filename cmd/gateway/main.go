package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/librolabs/libro-paymaster/internal/chain"
	"github.com/librolabs/libro-paymaster/internal/config"
	"github.com/librolabs/libro-paymaster/internal/paymaster"
	"github.com/librolabs/libro-paymaster/internal/pinning"
	"github.com/librolabs/libro-paymaster/internal/server"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Chain client (signer key + paymaster bindings) ────────────────────────
	onchain, err := chain.NewClient(cfg)
	if err != nil {
		log.Fatal("chain client init failed", zap.Error(err))
	}
	log.Info("chain client ready",
		zap.String("signer", onchain.SignerAddress().Hex()),
		zap.Int64("chain_id", cfg.Chain.ChainID),
	)

	// ── Session manager ───────────────────────────────────────────────────────
	tokens := make([]paymaster.ERC20Token, 0, len(cfg.Paymaster.Tokens))
	for _, t := range cfg.Paymaster.Tokens {
		tokens = append(tokens, paymaster.ERC20Token{
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Name:     t.Name,
			Decimals: t.Decimals,
		})
	}

	interval := time.Duration(cfg.Paymaster.PollIntervalMS) * time.Millisecond
	manager := paymaster.NewManager(ctx, onchain, onchain, interval, log)
	defer manager.Shutdown()

	// ── Pinning proxy ─────────────────────────────────────────────────────────
	pinClient := pinning.NewClient(cfg.Pinning.APIURL, cfg.Pinning.APIKey, cfg.Pinning.SecretKey)
	pinHandler := pinning.NewHandler(pinClient, log)

	// ── HTTP server ───────────────────────────────────────────────────────────
	books := server.ReadingLogConfig{
		Pin:      pinClient,
		Contract: common.HexToAddress(cfg.Paymaster.ReadingLogAddress),
		Counter:  common.HexToAddress(cfg.Paymaster.CounterAddress),
		Gateway:  cfg.Pinning.GatewayURL,
	}
	apiHandler := server.NewHandler(manager, rdb, tokens, books, log)
	router := server.NewRouter(apiHandler, pinHandler, rdb, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
