// Package scanner periodically evaluates a watch list and gates the
// resulting BUY/SELL decisions through the risk manager.
package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"trading-signalcore/config"
	"trading-signalcore/internal/marketdata/tfbuilder"
	"trading-signalcore/internal/markethours"
	"trading-signalcore/internal/metrics"
	"trading-signalcore/internal/model"
	"trading-signalcore/internal/notification"
	"trading-signalcore/internal/portfolio"
	"trading-signalcore/internal/strategy"
	redisstore "trading-signalcore/internal/store/redis"
	sqlitestore "trading-signalcore/internal/store/sqlite"
)

// Deps are the stores a Service reads from.
type Deps struct {
	Bars     model.BarProvider
	Accounts model.AccountStore
	State    model.RiskStateStore
}

// Service owns the scan loop and its dependencies.
type Service struct {
	cfg    *config.Config
	tf     model.Timeframe
	runner *strategy.Runner
	risk   *portfolio.RiskManager
	prom   *metrics.Metrics
	health *metrics.HealthStatus
	logger *slog.Logger
	clock  func() time.Time

	notifier notification.Notifier
	blocked  bool // user was blocked on the previous scan

	server  *metrics.Server
	sqlDB   *sql.DB
	rdb     *goredis.Client
	closers []io.Closer
}

// New opens SQLite (and Redis when enabled) and wires the scanner.
// A failed Redis connection degrades to SQLite-backed risk state.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	reg := prometheus.NewRegistry()
	prom := metrics.New(reg)
	health := metrics.NewHealthStatus()

	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("scanner: create data dir: %w", err)
		}
	}
	store, err := sqlitestore.Open(cfg.SQLite.Path, sqlitestore.WithMetrics(prom))
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}
	health.SetSQLiteOK(true)

	deps := Deps{Bars: tfbuilder.NewProvider(store), Accounts: store, State: store}
	closers := []io.Closer{store}

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		health.SetRedisEnabled(true)
		rs, err := redisstore.New(cfg.Redis.Store, redisstore.WithMetrics(prom))
		if err != nil {
			log.Printf("[scanner] WARNING: redis init failed: %v (risk state in sqlite)", err)
		} else {
			deps.State = rs
			rdb = rs.Client()
			closers = append(closers, rs)
			health.CheckRedis(context.Background(), rdb)
		}
	}

	svc := NewWithDeps(cfg, deps, logger, prom)
	svc.health = health
	svc.server = metrics.NewServer(cfg.Metrics.Addr, health, reg)
	svc.sqlDB = store.DB()
	svc.rdb = rdb
	svc.closers = closers
	return svc, nil
}

// NewWithDeps wires a Service over caller-supplied stores. It starts no
// servers and owns nothing that needs closing.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger, prom *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	eval := strategy.NewEvaluator(strategy.DefaultOptions(), prom)
	runner := strategy.NewRunner(eval, cfg.Scanner.Workers).WithProvider(deps.Bars, cfg.Scanner.History)
	risk := portfolio.NewRiskManager(cfg.Risk, deps.Accounts, deps.State,
		portfolio.WithLocation(markethours.NewYork),
		portfolio.WithLogger(logger),
		portfolio.WithMetrics(prom))

	return &Service{
		cfg:      cfg,
		tf:       cfg.ScannerTimeframe(),
		runner:   runner,
		risk:     risk,
		prom:     prom,
		health:   metrics.NewHealthStatus(),
		logger:   logger,
		clock:    time.Now,
		notifier: newNotifier(cfg.Alerts, logger),
	}
}

func newNotifier(cfg config.AlertsConfig, logger *slog.Logger) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" {
		n = append(n, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	return n
}

// Run scans once immediately and then every Scanner.Interval until ctx is
// cancelled. Outside market hours cycles are skipped unless AllHours is set.
func (svc *Service) Run(ctx context.Context) error {
	if svc.server != nil {
		svc.server.Start()
	}
	svc.health.StartLivenessChecker(ctx, svc.rdb, svc.sqlDB, 10*time.Second)

	log.Printf("[scanner] watching %d symbols on %s every %s (%s)",
		len(svc.cfg.Scanner.Symbols), svc.tf, svc.cfg.Scanner.Interval, markethours.StatusString(svc.clock()))

	ticker := time.NewTicker(svc.cfg.Scanner.Interval)
	defer ticker.Stop()

	svc.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			svc.shutdown()
			return nil
		case <-ticker.C:
			svc.tick(ctx)
		}
	}
}

func (svc *Service) tick(ctx context.Context) {
	now := svc.clock()
	open := markethours.IsMarketOpen(now)
	svc.prom.SetMarketOpen(open)
	if !open && !svc.cfg.Scanner.AllHours {
		return
	}
	if _, err := svc.ScanOnce(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[scanner] scan failed: %v", err)
	}
}

func (svc *Service) shutdown() {
	log.Println("[scanner] shutting down...")
	if svc.server != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		svc.server.Stop(shutCtx)
		cancel()
	}
	for i := len(svc.closers) - 1; i >= 0; i-- {
		if err := svc.closers[i].Close(); err != nil {
			log.Printf("[scanner] close: %v", err)
		}
	}
	log.Println("[scanner] shutdown complete.")
}
