package tfbuilder

import (
	"context"
	"fmt"
	"time"

	"trading-signalcore/internal/model"
)

// Provider serves wider timeframes from 1min history when the underlying
// store holds none for the requested timeframe.
type Provider struct {
	base model.BarProvider
}

var _ model.BarProvider = (*Provider)(nil)

// NewProvider wraps base.
func NewProvider(base model.BarProvider) *Provider {
	return &Provider{base: base}
}

func (p *Provider) GetBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Bar, error) {
	bars, err := p.base.GetBars(ctx, symbol, tf, start, end)
	if err != nil || len(bars) > 0 || tf == model.TF1Min {
		return bars, err
	}

	// Widen to whole buckets so the first bar is complete.
	from := start.Truncate(tf.Duration())
	minute, err := p.base.GetBars(ctx, symbol, model.TF1Min, from, end)
	if err != nil {
		return nil, fmt.Errorf("tfbuilder: 1min history for %s: %w", symbol, err)
	}

	out := Resample(minute, tf)
	i := 0
	for i < len(out) && out[i].TS.Before(start) {
		i++
	}
	return out[i:], nil
}
