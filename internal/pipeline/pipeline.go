// Package pipeline runs the incremental publishes ETL: extract events above
// the watermark, enrich them through the explorer, transform, load, then
// advance the watermark.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"publishScope/internal/enrich"
	"publishScope/internal/extract"
	"publishScope/internal/model"
	"publishScope/internal/storage"
	"publishScope/internal/transform"
)

// ErrEnrichmentFailed aborts a strict run when any lookup could not be verified.
var ErrEnrichmentFailed = errors.New("enrichment failed")

// EventSource reads decoded contract events from the chain.
type EventSource interface {
	Head(ctx context.Context) (uint64, error)
	FetchEvents(ctx context.Context, from, to uint64) ([]model.RawEvent, error)
}

// Enricher resolves explorer metadata for a set of transaction hashes.
type Enricher interface {
	Enrich(ctx context.Context, hashes []string) enrich.Report
}

// Metrics receives stage and run observations.
type Metrics interface {
	ObserveStage(stage string, err error, started time.Time)
	ObserveRetry(stage string)
	ObserveRun(state string)
	ObserveRows(table string, submitted, inserted int64)
	ObserveWatermark(block uint64)
}

// Options tunes a Pipeline.
type Options struct {
	Lookback         uint64
	Retry            RetryPolicy
	StrictEnrichment bool
	Metrics          Metrics
}

// Result summarizes one run.
type Result struct {
	State     State
	Trace     []State
	From      uint64
	To        uint64
	Events    int
	Records   int
	Inserted  int64
	NoEvents  bool
	Watermark uint64
	Report    enrich.Report
}

// Pipeline owns the watermark lifecycle; the stages only see range bounds.
type Pipeline struct {
	events    EventSource
	enricher  Enricher
	loader    storage.PublishLoader
	watermark storage.WatermarkStore
	opts      Options
	logger    *zap.Logger
}

func New(
	events EventSource,
	enricher Enricher,
	loader storage.PublishLoader,
	watermark storage.WatermarkStore,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = DefaultRetryPolicy(opts.Retry.Delay)
	}
	return &Pipeline{
		events:    events,
		enricher:  enricher,
		loader:    loader,
		watermark: watermark,
		opts:      opts,
		logger:    logger,
	}
}

// Run executes one pass of the state machine. A run with nothing to do ends
// in StateIdle with NoEvents set; any failure ends in StateAborted with the
// watermark untouched.
func (p *Pipeline) Run(ctx context.Context) (res Result, err error) {
	res.State = StateIdle
	defer func() {
		if err != nil {
			p.enter(&res, StateAborted)
			p.logger.Error("pipeline aborted", zap.Error(err))
		}
		p.opts.Metrics.ObserveRun(res.State.String())
	}()

	var (
		prev    uint64
		hasPrev bool
		rng     extract.BlockRange
		ok      bool
		events  []model.RawEvent
	)
	err = p.stage(ctx, &res, StateExtracting, func(ctx context.Context) error {
		var err error
		prev, hasPrev, err = p.watermark.LoadWatermark(ctx)
		if err != nil {
			return fmt.Errorf("load watermark: %w", err)
		}
		head, err := p.events.Head(ctx)
		if err != nil {
			return err
		}
		rng, ok = extract.SelectRange(prev, hasPrev, head, p.opts.Lookback)
		p.logger.Info("range selected",
			zap.Uint64("watermark", prev),
			zap.Bool("has_watermark", hasPrev),
			zap.Uint64("head", head),
			zap.Uint64("from", rng.From),
			zap.Uint64("to", rng.To),
			zap.Bool("empty", !ok),
		)
		if !ok {
			events = nil
			return nil
		}
		events, err = p.events.FetchEvents(ctx, rng.From, rng.To)
		return err
	})
	if err != nil {
		return res, err
	}
	res.From, res.To, res.Events = rng.From, rng.To, len(events)
	res.Watermark = prev

	if !ok || len(events) == 0 {
		res.NoEvents = true
		p.enter(&res, StateIdle)
		p.logger.Info("no events found", zap.Uint64("from", rng.From), zap.Uint64("to", rng.To))
		return res, nil
	}

	p.enter(&res, StateEnriching)
	started := time.Now()
	hashes := make([]string, 0, len(events))
	for _, ev := range events {
		hashes = append(hashes, ev.TxHash)
	}
	res.Report = p.enricher.Enrich(ctx, hashes)
	err = ctx.Err()
	if err == nil {
		err = res.Report.Err()
	}
	if err == nil && p.opts.StrictEnrichment {
		if failed := res.Report.Failed(); len(failed) > 0 {
			err = fmt.Errorf("%w: %d of %d lookups", ErrEnrichmentFailed, len(failed), len(res.Report.Results))
		}
	}
	p.opts.Metrics.ObserveStage(StateEnriching.String(), err, started)
	if err != nil {
		return res, err
	}

	p.enter(&res, StateTransforming)
	records := transform.Transform(events, res.Report.Enrichments())
	res.Records = len(records)

	err = p.stage(ctx, &res, StateLoading, func(ctx context.Context) error {
		if err := p.loader.EnsurePublishesSchema(ctx); err != nil {
			return err
		}
		inserted, err := p.loader.LoadPublishes(ctx, records)
		if err != nil {
			return err
		}
		res.Inserted = inserted
		return nil
	})
	if err != nil {
		return res, err
	}
	p.opts.Metrics.ObserveRows(storage.PublishesTable, int64(len(records)), res.Inserted)
	p.logger.Info("records loaded",
		zap.Int("events", len(events)),
		zap.Int("submitted", len(records)),
		zap.Int64("inserted", res.Inserted),
	)

	next := rng.To
	if hasPrev && prev > next {
		next = prev
	}
	err = p.stage(ctx, &res, StateWatermarkAdvance, func(ctx context.Context) error {
		return p.watermark.SaveWatermark(ctx, next)
	})
	if err != nil {
		return res, err
	}
	res.Watermark = next
	p.opts.Metrics.ObserveWatermark(next)
	p.logger.Info("watermark advanced", zap.Uint64("previous", prev), zap.Uint64("watermark", next))

	p.enter(&res, StateIdle)
	return res, nil
}

func (p *Pipeline) stage(ctx context.Context, res *Result, s State, fn func(context.Context) error) error {
	p.enter(res, s)
	started := time.Now()
	err := p.opts.Retry.Do(ctx, fn, func(attempt int, err error) {
		p.opts.Metrics.ObserveRetry(s.String())
		p.logger.Warn("stage failed, retrying",
			zap.String("stage", s.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	p.opts.Metrics.ObserveStage(s.String(), err, started)
	if err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	return nil
}

func (p *Pipeline) enter(res *Result, s State) {
	res.State = s
	res.Trace = append(res.Trace, s)
	p.logger.Debug("state", zap.String("state", s.String()))
}

// Loop runs the pipeline every interval until ctx is done. Runs never overlap;
// a failed run is logged and the next tick tries again. afterRun, if set, is
// called once per run with its outcome.
func (p *Pipeline) Loop(ctx context.Context, interval time.Duration, afterRun func(Result, error)) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := p.Run(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("scheduled run failed", zap.Error(err))
		}
		if afterRun != nil {
			afterRun(res, err)
		}
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ExitCode maps a run error to a process exit status.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(string, error, time.Time) {}
func (nopMetrics) ObserveRetry(string)                   {}
func (nopMetrics) ObserveRun(string)                     {}
func (nopMetrics) ObserveRows(string, int64, int64)      {}
func (nopMetrics) ObserveWatermark(uint64)               {}
