// Package tfbuilder resamples 1-minute bars into wider timeframes.
//
// Builder is incremental: it keeps one forming bar per (symbol, timeframe)
// and emits it once a bar arrives in a later bucket. Buckets are aligned to
// the Unix epoch, which puts 5min and 15min boundaries on the exchange's
// quarter hours.
package tfbuilder

import (
	"time"

	"trading-signalcore/internal/model"
)

// tfState holds the forming bar for one series.
type tfState struct {
	bucket int64 // bucket start, Unix seconds
	bar    model.Bar
}

// Builder resamples 1min bars into the configured timeframes. Not safe for
// concurrent use.
type Builder struct {
	tfs []model.Timeframe

	// states[tfIdx][symbol]
	states []map[string]*tfState

	// OnStaleBar is called when a bar older than the forming bucket is
	// dropped (optional).
	OnStaleBar func(rec model.BarRecord)
}

// New creates a builder for the given target timeframes.
func New(tfs ...model.Timeframe) *Builder {
	states := make([]map[string]*tfState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*tfState, 16)
	}
	return &Builder{tfs: tfs, states: states}
}

// Add folds a 1min bar into every target timeframe and returns the bars
// it finalized, in timeframe order.
func (b *Builder) Add(symbol string, bar model.Bar) []model.BarRecord {
	var out []model.BarRecord
	ts := bar.TS.Unix()

	for i, tf := range b.tfs {
		width := int64(tf.Duration() / time.Second)
		if width <= 0 {
			continue
		}
		bucket := ts - ts%width

		st, exists := b.states[i][symbol]
		if exists && bucket < st.bucket {
			if b.OnStaleBar != nil {
				b.OnStaleBar(model.BarRecord{Symbol: symbol, Timeframe: model.TF1Min, Bar: bar})
			}
			continue
		}

		if exists && bucket > st.bucket {
			out = append(out, model.BarRecord{Symbol: symbol, Timeframe: tf, Bar: st.bar})
			exists = false
		}

		if !exists {
			nb := bar
			nb.TS = time.Unix(bucket, 0).UTC()
			b.states[i][symbol] = &tfState{bucket: bucket, bar: nb}
			continue
		}

		fb := &st.bar
		fb.High = max(fb.High, bar.High)
		fb.Low = min(fb.Low, bar.Low)
		fb.Close = bar.Close
		fb.Volume += bar.Volume
	}
	return out
}

// Flush emits every forming bar, including incomplete buckets, and resets
// the builder.
func (b *Builder) Flush() []model.BarRecord {
	var out []model.BarRecord
	for i, tf := range b.tfs {
		for sym, st := range b.states[i] {
			out = append(out, model.BarRecord{Symbol: sym, Timeframe: tf, Bar: st.bar})
			delete(b.states[i], sym)
		}
	}
	return out
}

// TFs returns the target timeframes.
func (b *Builder) TFs() []model.Timeframe {
	return b.tfs
}

// Resample converts an ascending 1min series to tf. The last bucket is
// included even when incomplete. A 1min target returns bars unchanged.
func Resample(bars []model.Bar, tf model.Timeframe) []model.Bar {
	if tf == model.TF1Min || tf.Minutes() == 0 {
		return bars
	}
	b := New(tf)
	out := make([]model.Bar, 0, len(bars)/tf.Minutes()+1)
	for _, bar := range bars {
		for _, rec := range b.Add("", bar) {
			out = append(out, rec.Bar)
		}
	}
	for _, rec := range b.Flush() {
		out = append(out, rec.Bar)
	}
	return out
}
