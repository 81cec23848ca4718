package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkefalas/apiary/internal/backend"
	"github.com/mkefalas/apiary/internal/config"
	"github.com/mkefalas/apiary/internal/maintenance"
	"github.com/mkefalas/apiary/internal/monitor"
	"github.com/mkefalas/apiary/internal/natsbus"
	"github.com/mkefalas/apiary/internal/notify"
	"github.com/mkefalas/apiary/internal/registry"
	"github.com/mkefalas/apiary/internal/router"
	"github.com/mkefalas/apiary/internal/store"
	"github.com/mkefalas/apiary/internal/swarm"
	"github.com/mkefalas/apiary/internal/vault"
	"github.com/mkefalas/apiary/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("apiary %s\n", version)
	case "serve":
		if err := serve(); err != nil {
			slog.Error("engine failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: apiary <command>\n\nCommands:\n  serve      Start the Apiary task engine\n  version    Print version\n")
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting apiary", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Credential keeper
	var keeper *vault.Keeper
	if cfg.Vault.Passphrase != "" {
		keeper = vault.NewKeeper(vault.New(cfg.Vault.Passphrase), db)
	} else {
		slog.Warn("vault passphrase not set, stored credentials unavailable")
	}

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	events, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	// Validate the configured execution backend before accepting work
	gatewayToken := ""
	if keeper != nil {
		if tok, err := keeper.Get("gateway_token"); err == nil {
			gatewayToken = tok
		}
	}
	probe, err := backend.New(cfg.Backend.Kind, registry.AgentPermissions{ReadFiles: true}, cfg.Swarm.Workspace, gatewayToken)
	if err != nil {
		return fmt.Errorf("init backend: %w", err)
	}
	defer probe.Cleanup()
	slog.Info("execution backend ready", "kind", cfg.Backend.Kind)

	// Template registry and swarm runtime
	reg := registry.New()
	rt := swarm.New(reg, db, events, cfg.Swarm.MessageRetention)
	if err := rt.Load(); err != nil {
		return fmt.Errorf("restore swarm state: %w", err)
	}

	// Task router
	rtr := router.New(reg, rt, db)

	// Escalation notifier
	tgCfg := cfg.Telegram
	if tgCfg.Token == "" && keeper != nil {
		if tok, err := keeper.Get("telegram_token"); err == nil && tok != "" {
			tgCfg.Token = tok
		}
	}
	notifier, err := notify.NewTelegram(tgCfg)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	if !notifier.Enabled() {
		slog.Warn("telegram token not set, escalations will be dropped")
	}

	// Completion-decision engine
	engine := monitor.New(db, rt, events, notifier, monitor.Settings{
		AutoComplete:         cfg.Monitor.AutoComplete,
		AutoCompleteTimeout:  cfg.Monitor.AutoCompleteTimeout,
		RequiresReview:       cfg.Monitor.RequiresReview,
		RequiresVerification: cfg.Monitor.RequiresVerification,
		MaxRetries:           cfg.Monitor.MaxRetries,
		ExecuteSubtasks:      cfg.Monitor.ExecuteSubtasks,
	}, cfg.Monitor.Interval)
	defer engine.Shutdown()

	// Maintenance sweeper
	sweeper := maintenance.New(db, rt, cfg.Maintenance)
	go sweeper.Start(ctx)

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, reg, rt, rtr, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	rt.Stop()
	return nil
}
