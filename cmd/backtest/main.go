// cmd/backtest replays stored bars through the prediction model and prints
// accuracy, streak and equity statistics.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=SPY --from=2026-03-02 --to=2026-03-07
//	go run ./cmd/backtest --symbol=SPY --import=spy_1min.csv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-signalcore/config"
	"trading-signalcore/internal/backtest"
	"trading-signalcore/internal/logger"
	"trading-signalcore/internal/marketdata/tfbuilder"
	"trading-signalcore/internal/markethours"
	"trading-signalcore/internal/model"
	sqlitestore "trading-signalcore/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfgPath := flag.String("config", "", "YAML config file (optional)")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides config)")
	symbol := flag.String("symbol", "", "Symbol to backtest")
	tfStr := flag.String("tf", "", "Timeframe: 1min, 5min or 15min")
	fromStr := flag.String("from", "", "Start date YYYY-MM-DD or RFC 3339 (default: 7 days ago)")
	toStr := flag.String("to", "", "End date YYYY-MM-DD or RFC 3339, exclusive (default: now)")
	lookback := flag.Int("lookback", 0, "Bars in the trailing window")
	steps := flag.Int("steps", 0, "Prediction horizon in bars")
	asJSON := flag.Bool("json", false, "Print the full result as JSON")
	importPath := flag.String("import", "", "Import 1min bars from a CSV file before running")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	if *dbPath != "" {
		cfg.SQLite.Path = *dbPath
	}
	if *symbol == "" {
		log.Fatal("[backtest] --symbol is required")
	}

	level, _ := logger.ParseLevel(cfg.Log.Level)
	slogger := logger.Init("backtest", level)

	tf := model.Timeframe(cfg.Backtest.Timeframe)
	if *tfStr != "" {
		if tf, err = model.ParseTimeframe(*tfStr); err != nil {
			log.Fatalf("[backtest] %v", err)
		}
	}

	now := time.Now()
	from, err := parseDate(*fromStr, now.AddDate(0, 0, -7))
	if err != nil {
		log.Fatalf("[backtest] --from: %v", err)
	}
	to, err := parseDate(*toStr, now)
	if err != nil {
		log.Fatalf("[backtest] --to: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	store, err := sqlitestore.Open(cfg.SQLite.Path)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer store.Close()

	if *importPath != "" {
		f, err := os.Open(*importPath)
		if err != nil {
			log.Fatalf("[backtest] import: %v", err)
		}
		// Imports are 1min history; wider timeframes are resampled on read.
		n, err := store.ImportCSV(ctx, f, *symbol, model.TF1Min)
		f.Close()
		if err != nil {
			log.Fatalf("[backtest] import %s after %d bars: %v", *importPath, n, err)
		}
		log.Printf("[backtest] imported %d bars from %s", n, *importPath)
		// An import without explicit dates covers the whole file.
		if *fromStr == "" && *toStr == "" {
			if first, last, ok, _ := store.BarRange(ctx, *symbol, model.TF1Min); ok {
				from, to = first, last.Add(time.Second)
			}
		}
	}

	btCfg := model.BacktestConfig{
		Symbol:         *symbol,
		Start:          from,
		End:            to,
		Timeframe:      tf,
		LookbackPeriod: cfg.Backtest.Lookback,
		StepsAhead:     cfg.Backtest.Steps,
	}
	if *lookback > 0 {
		btCfg.LookbackPeriod = *lookback
	}
	if *steps > 0 {
		btCfg.StepsAhead = *steps
	}

	res, err := backtest.Run(ctx, btCfg, tfbuilder.NewProvider(store),
		backtest.WithLogger(slogger),
		backtest.WithProgress(progressLogger(slogger)))
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatalf("[backtest] encode: %v", err)
		}
		return
	}
	printSummary(res)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

// parseDate accepts YYYY-MM-DD (New York midnight) or RFC 3339.
func parseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, markethours.NewYork); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// progressLogger logs every tenth of the run.
func progressLogger(l *slog.Logger) backtest.ProgressFunc {
	return func(done, total int) {
		step := max(total/10, 1)
		if done%step == 0 || done == total {
			l.Debug("backtest progress", slog.Int("done", done), slog.Int("total", total))
		}
	}
}

func printSummary(res *model.BacktestResult) {
	m := res.Metrics
	streak := "loss"
	if m.CurrentStreakWin {
		streak = "win"
	}
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║            BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Symbol:             %-19s ║\n", res.Config.Symbol+" "+string(res.Config.Timeframe))
	fmt.Printf("║  Bars used:          %-19d ║\n", res.BarsUsed)
	fmt.Printf("║  Predictions:        %-19d ║\n", m.TotalPredictions)
	fmt.Printf("║  Direction accuracy: %-19s ║\n", fmt.Sprintf("%.2f%%", m.DirectionAccuracy))
	fmt.Printf("║  Price accuracy:     %-19s ║\n", fmt.Sprintf("%.2f%%", m.PriceAccuracy))
	fmt.Printf("║  Mean abs error:     %-19.4f ║\n", m.MeanAbsError)
	fmt.Printf("║  Avg confidence:     %-19.2f ║\n", m.AvgConfidence)
	fmt.Printf("║  Streaks W/L:        %-19s ║\n", fmt.Sprintf("%d / %d", m.LongestWinStreak, m.LongestLossStreak))
	fmt.Printf("║  Current streak:     %-19s ║\n", fmt.Sprintf("%d %s", m.CurrentStreak, streak))
	fmt.Printf("║  Sharpe ratio:       %-19.3f ║\n", m.SharpeRatio)
	fmt.Printf("║  Max drawdown:       %-19s ║\n", fmt.Sprintf("%.2f%%", m.MaxDrawdownPct))
	fmt.Printf("║  Total return:       %-19s ║\n", fmt.Sprintf("%.2f%%", m.TotalReturnPct))
	fmt.Printf("║  Final equity:       %-19.2f ║\n", m.FinalEquity)
	fmt.Println("╚══════════════════════════════════════════╝")
}
