package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stock_auction/internal/app"
)

func main() {
	var opts app.Options
	flag.StringVar(&opts.ConfigPath, "config", "configs/config.yaml", "path to the YAML config file")
	flag.StringVar(&opts.CataloguePath, "catalogue", "", "stock catalogue (.csv, .yaml); overrides catalogue.path")
	flag.StringVar(&opts.ListenAddr, "listen", "", "auction listen address; overrides server.listen_addr")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(opts)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Serve until signalled
	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("Server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("Bye")
}
