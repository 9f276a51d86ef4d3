package strategy

import (
	"context"
	"log"
	"sync"
	"time"

	"trading-signalcore/internal/model"
)

// Request asks the Runner to evaluate one symbol. When Bars is nil the
// Runner fetches them from its BarProvider.
type Request struct {
	Symbol    string
	Timeframe model.Timeframe
	Bars      []model.Bar
}

// Response carries the evaluation of one Request. Err is set when the bars
// could not be fetched; Result is then the zero value.
type Response struct {
	Symbol    string
	Timeframe model.Timeframe
	Result    model.SignalResult
	BarCount  int
	Err       error
}

// Runner evaluates many symbols concurrently on a fixed pool of workers.
type Runner struct {
	eval     *Evaluator
	workers  int
	provider model.BarProvider
	history  time.Duration
	clock    func() time.Time
}

// NewRunner creates a runner with the given worker count (minimum 1).
func NewRunner(eval *Evaluator, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{eval: eval, workers: workers, clock: time.Now}
}

// WithProvider lets the Runner fetch bars for requests that carry none,
// covering the trailing history window up to now.
func (r *Runner) WithProvider(p model.BarProvider, history time.Duration) *Runner {
	r.provider = p
	r.history = history
	return r
}

// Run consumes requests and emits one response per request. The returned
// channel is closed once in is closed (or ctx is cancelled) and every
// in-flight evaluation has finished.
func (r *Runner) Run(ctx context.Context, in <-chan Request) <-chan Response {
	out := make(chan Response, r.workers)
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, in, out)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (r *Runner) worker(ctx context.Context, in <-chan Request, out chan<- Response) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-in:
			if !ok {
				return
			}
			resp := r.handle(ctx, req)
			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *Runner) handle(ctx context.Context, req Request) Response {
	resp := Response{Symbol: req.Symbol, Timeframe: req.Timeframe}
	bars := req.Bars
	if bars == nil && r.provider != nil {
		now := r.clock()
		var err error
		bars, err = r.provider.GetBars(ctx, req.Symbol, req.Timeframe, now.Add(-r.history), now)
		if err != nil {
			log.Printf("[strategy] %s: fetch bars: %v", req.Symbol, err)
			resp.Err = err
			return resp
		}
	}
	resp.BarCount = len(bars)
	resp.Result = r.eval.Evaluate(bars)
	return resp
}
