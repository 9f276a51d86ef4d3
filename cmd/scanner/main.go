// cmd/scanner evaluates the configured watch list on a fixed interval,
// gates decisions through the risk manager and serves /metrics and /healthz.
//
// Usage:
//
//	go run ./cmd/scanner --config=signalcore.yaml
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"trading-signalcore/config"
	"trading-signalcore/internal/logger"
	"trading-signalcore/internal/scanner"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[scanner] starting...")

	cfgPath := flag.String("config", "", "YAML config file (default: environment only)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *cfgPath != "" {
		cfg, err = config.LoadFile(*cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("[scanner] config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("[scanner] %v", err)
	}
	slogger, closer, err := logger.New(logger.Options{
		Service:    "scanner",
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		log.Fatalf("[scanner] logger: %v", err)
	}
	defer closer.Close()

	svc, err := scanner.New(cfg, slogger)
	if err != nil {
		log.Fatalf("[scanner] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[scanner] fatal: %v", err)
	}
}
