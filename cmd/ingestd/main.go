// ingestd is a real-time market-data ingestion core for Binance USD-M
// futures.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts the runtime, waits for SIGINT/SIGTERM
//	internal/runtime           — orchestrator: wires the streaming client, agent, dispatcher, and books
//	internal/exchange/ws.go    — WebSocket streaming client with auto-reconnect and 24h rotation
//	internal/exchange/snapshot.go — REST depth-snapshot client
//	internal/agent             — decodes frames and fires them into the dispatcher
//	internal/dispatcher        — fans decoded envelopes out to registered handlers
//	internal/ring              — the bounded SPSC transport between agent and dispatcher
//	internal/book              — per-symbol order-book replica with gap detection
//
// It ingests aggTrade, depthUpdate, and continuous_kline streams and
// maintains a local order-book replica for every configured symbol; it does
// not place or manage orders.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/eborlee/ingestd/internal/config"
	"github.com/eborlee/ingestd/internal/runtime"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("INGESTD_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	rt := runtime.New(cfg, logger)

	for _, symbol := range cfg.Venue.Symbols {
		if _, err := rt.RegisterBook(symbol); err != nil {
			logger.Error("failed to register book", "symbol", symbol, "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.StartService(ctx); err != nil {
		logger.Error("failed to start runtime", "error", err)
		os.Exit(1)
	}

	logger.Info("ingestd started",
		"stream_base_url", cfg.Venue.StreamBaseURL,
		"symbols", cfg.Venue.Symbols,
		"streams", cfg.Venue.Streams,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	rt.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
