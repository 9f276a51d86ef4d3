// Package backtest replays a historical bar range through a simplified
// predictor and scores it the way a strategy would be scored live:
// direction hit rate, price error, streaks, Sharpe and drawdown on a
// synthetic equity curve.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"trading-signalcore/internal/metrics"
	"trading-signalcore/internal/model"
)

// MinBars is the fewest bars a range must hold to be replayed.
const MinBars = 30

var (
	ErrInsufficientData = errors.New("backtest: insufficient data")
	ErrInvalidConfig    = errors.New("backtest: invalid config")
)

var validate = validator.New()

// ProgressFunc is called after every replayed step.
type ProgressFunc func(done, total int)

type runOptions struct {
	progress ProgressFunc
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
}

// Option customises a Run.
type Option func(*runOptions)

// WithProgress reports progress after every step.
func WithProgress(fn ProgressFunc) Option {
	return func(o *runOptions) { o.progress = fn }
}

// WithMetrics records the run's outcome and duration.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *runOptions) { o.metrics = m }
}

// WithLogger replaces slog.Default for run logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// WithClock stamps StartedAt from fn instead of time.Now.
func WithClock(fn func() time.Time) Option {
	return func(o *runOptions) { o.clock = fn }
}

// Normalize fills defaulted fields of cfg and validates it. Errors wrap
// ErrInvalidConfig.
func Normalize(cfg model.BacktestConfig) (model.BacktestConfig, error) {
	if err := defaults.Set(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return cfg, fmt.Errorf("%w: %s failed %s %s", ErrInvalidConfig, fe.Field(), fe.Tag(), fe.Param())
		}
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Run fetches cfg's range from provider and replays it.
func Run(ctx context.Context, cfg model.BacktestConfig, provider model.BarProvider, opts ...Option) (*model.BacktestResult, error) {
	o := applyOptions(opts)
	start := time.Now()

	res, err := run(ctx, cfg, provider, o)
	o.metrics.ObserveBacktest(err, time.Since(start), tradeCount(res))
	if err != nil {
		o.logger.Warn("backtest failed",
			slog.String("symbol", cfg.Symbol),
			slog.String("error", err.Error()))
		return nil, err
	}
	o.logger.Info("backtest complete",
		slog.String("id", res.ID),
		slog.String("symbol", res.Config.Symbol),
		slog.String("timeframe", string(res.Config.Timeframe)),
		slog.Int("bars", res.BarsUsed),
		slog.Int("predictions", res.Metrics.TotalPredictions),
		slog.Float64("direction_accuracy", res.Metrics.DirectionAccuracy),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func run(ctx context.Context, cfg model.BacktestConfig, provider model.BarProvider, o runOptions) (*model.BacktestResult, error) {
	cfg, err := Normalize(cfg)
	if err != nil {
		return nil, err
	}
	bars, err := provider.GetBars(ctx, cfg.Symbol, cfg.Timeframe, cfg.Start, cfg.End)
	if err != nil {
		return nil, fmt.Errorf("backtest: fetch bars %s: %w", cfg.Symbol, err)
	}
	return replay(ctx, cfg, bars, o)
}

// Replay runs an already-loaded, ascending bar series. cfg.Start and
// cfg.End are informational here.
func Replay(ctx context.Context, cfg model.BacktestConfig, bars []model.Bar, opts ...Option) (*model.BacktestResult, error) {
	o := applyOptions(opts)
	start := time.Now()

	cfg, err := Normalize(cfg)
	var res *model.BacktestResult
	if err == nil {
		res, err = replay(ctx, cfg, bars, o)
	}
	o.metrics.ObserveBacktest(err, time.Since(start), tradeCount(res))
	return res, err
}

func applyOptions(opts []Option) runOptions {
	o := runOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}

func tradeCount(res *model.BacktestResult) int {
	if res == nil {
		return 0
	}
	return len(res.Trades)
}

func replay(ctx context.Context, cfg model.BacktestConfig, bars []model.Bar, o runOptions) (*model.BacktestResult, error) {
	startedAt := o.clock()
	began := time.Now()

	n := len(bars)
	lookback, steps := cfg.LookbackPeriod, cfg.StepsAhead
	if n < MinBars {
		return nil, fmt.Errorf("%w: %d bars for %s, need at least %d", ErrInsufficientData, n, cfg.Symbol, MinBars)
	}
	// A replay also needs one full window plus the horizon.
	if need := lookback + steps + 1; n < need {
		return nil, fmt.Errorf("%w: %d bars for %s, lookback %d + steps %d needs %d",
			ErrInsufficientData, n, cfg.Symbol, lookback, steps, need)
	}

	closes := model.Closes(bars)
	total := n - steps - lookback
	trades := make([]model.BacktestTrade, 0, total)
	curve := make([]model.EquityPoint, 0, total+1)

	equity := cfg.InitialEquity
	curve = append(curve, model.EquityPoint{TS: bars[lookback].TS, Equity: equity})

	for i := lookback; i+steps < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}

		window := closes[i-lookback+1 : i+1]
		pred := Predict(window, steps)

		entry, actual := closes[i], closes[i+steps]
		actualDir := direction(entry, actual, steps)

		absErr := math.Abs(pred.Price - actual)
		pctErr := 0.0
		if actual != 0 {
			pctErr = absErr / actual * 100
		}

		ret := 0.0
		if entry != 0 {
			ret = cfg.PositionFraction * (actual - entry) / entry * pred.Direction.Sign()
		}
		equity += equity * ret

		trades = append(trades, model.BacktestTrade{
			Step:               len(trades),
			TS:                 bars[i].TS,
			TargetTS:           bars[i+steps].TS,
			EntryPrice:         entry,
			PredictedPrice:     pred.Price,
			PredictedDirection: pred.Direction,
			ActualPrice:        actual,
			ActualDirection:    actualDir,
			Confidence:         pred.Confidence,
			AbsError:           absErr,
			PctError:           pctErr,
			DirectionMatch:     pred.Direction == actualDir,
			PriceMatch:         pctErr <= cfg.PriceThresholdPct,
			Return:             ret,
			Equity:             equity,
		})
		curve = append(curve, model.EquityPoint{TS: bars[i+steps].TS, Equity: equity})

		if o.progress != nil {
			o.progress(len(trades), total)
		}
	}

	return &model.BacktestResult{
		ID:          uuid.NewString(),
		Config:      cfg,
		Metrics:     summarize(trades, curve, cfg),
		Trades:      trades,
		EquityCurve: curve,
		BarsUsed:    n,
		StartedAt:   startedAt,
		Duration:    time.Since(began),
	}, nil
}
