package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stickerhunter/api"
	"stickerhunter/bot"
	"stickerhunter/config"
	"stickerhunter/metrics"
	"stickerhunter/models"
	"stickerhunter/purchase"
	"stickerhunter/wallet"
	"stickerhunter/watcher"
)

func main() {
	once := flag.Bool("once", false, "Purchase once and exit (buys maximum possible with current balance)")
	continuous := flag.Bool("continuous", false, "Keep monitoring and buying after successful purchases")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] character_id/collection_id (e.g. 2/15)\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	target, err := parseTarget(flag.Arg(0))
	if err != nil {
		slog.Error("invalid target", slog.Any("error", err))
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.ValidateSecrets(); err != nil {
		slog.Error("missing credentials", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	client := api.NewClient(cfg, m)
	tonWallet := wallet.NewTONWallet(cfg)
	orchestrator := purchase.NewOrchestrator(client, tonWallet, cfg, m)
	collectionWatcher := watcher.New(client, cfg, m)
	hunter := bot.New(client, tonWallet, orchestrator, collectionWatcher)

	if *once {
		err = runOnce(ctx, hunter, tonWallet, target)
	} else {
		err = hunter.Run(ctx, target, *continuous)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if err != nil {
		slog.Error("bot failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, hunter *bot.Bot, w wallet.Wallet, target models.Target) error {
	if err := hunter.Initialize(ctx); err != nil {
		return err
	}
	defer w.Close()
	return hunter.RunOnce(ctx, target)
}

// parseTarget parses the positional character_id/collection_id argument.
func parseTarget(arg string) (models.Target, error) {
	parts := strings.Split(arg, "/")
	if len(parts) != 2 {
		return models.Target{}, fmt.Errorf("invalid format %q, use character_id/collection_id (e.g. 2/15)", arg)
	}
	characterID, err := strconv.Atoi(parts[0])
	if err != nil {
		return models.Target{}, fmt.Errorf("invalid character id %q", parts[0])
	}
	collectionID, err := strconv.Atoi(parts[1])
	if err != nil {
		return models.Target{}, fmt.Errorf("invalid collection id %q", parts[1])
	}
	if characterID <= 0 || collectionID <= 0 {
		return models.Target{}, fmt.Errorf("ids must be positive, got %q", arg)
	}
	return models.Target{CollectionID: collectionID, CharacterID: characterID}, nil
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
