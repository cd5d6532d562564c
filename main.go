package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"breakout-retest/api"
	"breakout-retest/config"
	"breakout-retest/daemon"
	"breakout-retest/feed"
	"breakout-retest/logging"
	"breakout-retest/models"
	"breakout-retest/paper"
	"breakout-retest/status"
	"breakout-retest/strategy"
)

const shutdownTimeout = 10 * time.Second

var (
	cfg    *config.Config
	logger *logging.Logger
)

// Initialize logging with the provided configuration
func initLogging(debug bool) error {
	level := logging.ParseLevel(cfg.LogLevel)
	if debug {
		level = logging.DEBUG
	}
	var err error
	logger, err = logging.NewLogger(logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
		Level:      level,
		Quiet:      daemon.IsDaemon(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func main() {
	mode := flag.String("mode", "", "replay or live (overrides MODE)")
	debug := flag.Bool("debug", false, "enable debug logs")
	configPath := flag.String("config", "", "YAML config file (overrides CONFIG_FILE)")
	pidFile := flag.String("pid-file", daemon.DefaultPIDFile, "PID file for daemon control")
	daemonStart := flag.Bool("start-daemon", false, "Start the application as a daemon")
	daemonStop := flag.Bool("stop-daemon", false, "Stop the daemon process")
	daemonRestart := flag.Bool("restart-daemon", false, "Restart the daemon process")
	flag.Parse()

	switch {
	case *daemonStop:
		if err := daemon.StopDaemon(*pidFile, shutdownTimeout); err != nil {
			log.Fatalf("Failed to stop daemon: %v", err)
		}
		fmt.Println("Daemon stopped")
		return
	case *daemonStart, *daemonRestart:
		args := daemon.StripFlags(os.Args[1:])
		var pid int
		var err error
		if *daemonRestart {
			pid, err = daemon.RestartDaemon(args, *pidFile, shutdownTimeout)
		} else {
			pid, err = daemon.StartDaemon(args, *pidFile)
		}
		if err != nil {
			log.Fatalf("Failed to start daemon: %v", err)
		}
		fmt.Printf("Daemon started with PID %d (PID file %s)\n", pid, *pidFile)
		return
	}

	var err error
	cfg, err = config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := initLogging(*debug); err != nil {
		log.Fatalf("%v", err)
	}
	defer logger.Close()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting %s %s on %s in %s mode (testnet=%t, daemon=%t)",
		cfg.Symbol, cfg.Timeframe, cfg.RESTHost, cfg.Mode, cfg.Testnet, daemon.IsDaemon())

	rest := api.NewRESTClient(cfg, logger)
	defer rest.Close()

	switch cfg.Mode {
	case config.ModeLive:
		err = runLive(ctx, rest)
	default:
		err = runReplay(ctx, rest)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Stopped with error: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func runLive(ctx context.Context, rest *api.RESTClient) error {
	state := &models.State{}
	trader, err := strategy.NewTrader(rest, cfg, state, logger)
	if err != nil {
		return err
	}
	if _, err := trader.Guard.Restore(); err != nil {
		logger.Error("Drawdown marker: %v", err)
	}
	bal, err := rest.FetchBalance(ctx, cfg.QuoteCoin)
	if err != nil {
		return fmt.Errorf("API authentication failed, check credentials: %w", err)
	}
	logger.Info("API connection established, %s balance %.4f", cfg.QuoteCoin, bal)
	if err := trader.Warmup(ctx); err != nil {
		return err
	}

	server := status.StartServer(cfg, state, logger)

	client, err := feed.New(feed.Options{
		URL:            cfg.WSPublicURL,
		Symbol:         cfg.Symbol,
		Timeframe:      cfg.Timeframe,
		SubscribeStyle: cfg.SubscribeStyle,
		ReconnectDelay: cfg.ReconnectDelay,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
	}, trader.OnBar, logger)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	logger.Info("Streaming %s from %s", client.Topic(), cfg.WSPublicURL)

	select {
	case err = <-done:
	case <-ctx.Done():
		logger.Info("Received shutdown signal, stopping feed...")
		client.Stop()
		err = <-done
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			logger.Error("Status server shutdown: %v", serr)
		}
	}
	if err := logger.Sync(); err != nil {
		log.Printf("Error syncing logger: %v", err)
	}
	return err
}

func runReplay(ctx context.Context, rest *api.RESTClient) error {
	// the live drawdown marker belongs to the live account
	replayCfg := *cfg
	replayCfg.DrawdownMarkerPath = ""

	broker := paper.NewBroker(rest, cfg.PaperBalance, cfg.PaperFeeRate)
	trader, err := strategy.NewTrader(broker, &replayCfg, nil, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	sum, err := trader.Replay(ctx)
	if err != nil {
		return err
	}

	balance, _ := broker.FetchBalance(ctx, cfg.QuoteCoin)
	wins := 0
	for _, e := range sum.Exits {
		if e.PnL > 0 {
			wins++
		}
	}
	logger.Info("Replay done in %s: %d bars (%s to %s), %d signals, %d fills, %d exits (%d wins), balance %.4f -> %.4f",
		time.Since(start).Round(time.Millisecond), sum.Bars,
		sum.From.Format(time.RFC3339), sum.To.Format(time.RFC3339),
		sum.Signals, len(broker.Fills()), len(sum.Exits), wins, cfg.PaperBalance, balance)
	return nil
}
