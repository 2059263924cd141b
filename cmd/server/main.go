package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arhyth/pinledger"
	"github.com/bwmarrin/snowflake"
)

func main() {
	cfp := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()

	cfg, err := pinledger.LoadConfig(*cfp)
	logger := pinledger.NewLogger(cfg.Log)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *cfp).Msg("error loading config file")
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		logger.Fatal().Err(err).Int64("node_id", cfg.NodeID).Msg("error creating snowflake node")
	}

	blobs, closeBlobs, err := pinledger.OpenBlobStore(cfg.Storage, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("error opening storage")
	}
	defer closeBlobs()

	locker, closeLocker, err := pinledger.OpenLocker(cfg.Lock, node, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Lock.Backend).Msg("error opening store lock")
	}
	defer closeLocker()

	svc, err := pinledger.NewService(pinledger.ServiceDeps{
		Store:    pinledger.NewDocumentStore(blobs, cfg.Storage.Key),
		Locker:   locker,
		Node:     node,
		DraftTTL: cfg.Drafts.TTL,
	}, cfg.Policy, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting service")
	}

	wrapped := pinledger.Chain(svc,
		pinledger.NewValidationMiddleware(),
		pinledger.NewLimitMiddleware(pinledger.NewServiceLimits(cfg.Limits)),
		pinledger.NewCircuitBreakMiddleware(pinledger.NewServiceBreaker(cfg.Breaker, &logger)),
	)
	hndlr := pinledger.NewHTTPHandler(wrapped, &logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           hndlr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Err(err).Msg("error shutting down server")
		}
	}()

	logger.Info().Str("addr", cfg.HTTP.Addr).Str("storage", cfg.Storage.Backend).Msg("ledger server listening")
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
