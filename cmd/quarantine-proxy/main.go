package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"quarantine-proxy/internal/accounts"
	"quarantine-proxy/internal/config"
	"quarantine-proxy/internal/proxy"
	"quarantine-proxy/internal/rest"
	"quarantine-proxy/internal/store"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	if cfg.AccountsFile != "" {
		acctStore, err := accounts.Load(cfg.AccountsFile)
		if err != nil {
			logger.Error("failed to load accounts file", "err", err)
			os.Exit(1)
		}
		logger.Info("loaded account directory", "accounts", acctStore.Len())
	}

	logger.Info("starting quarantine-proxy",
		"upstream", cfg.Upstream.Addr(),
		"quarantine_enabled", cfg.Quarantine.Enabled,
		"min_amount", cfg.Quarantine.MinAmount,
	)

	quarantineStore := store.New()

	srv := proxy.NewServer(cfg, quarantineStore, logger)

	var restSrv *http.Server
	if cfg.Server.RESTListen != "" {
		restSrv = &http.Server{
			Addr:    cfg.Server.RESTListen,
			Handler: rest.NewServer(quarantineStore, logger),
		}
		go func() {
			logger.Info("REST surface listening", "addr", cfg.Server.RESTListen)
			if err := restSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("REST server error", "err", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		srv.Close()
		if restSrv != nil {
			restSrv.Close()
		}
	}()

	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
