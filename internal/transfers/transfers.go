// Package transfers loads the token transfers that publishers send to the hub
// contract.
package transfers

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"publishScope/internal/model"
	"publishScope/internal/pipeline"
	"publishScope/internal/storage"
)

const defaultDecimals = 18

// Source is the explorer surface the pipeline needs.
type Source interface {
	TokenHolders(ctx context.Context, contract string, page, row int) ([]string, error)
	ERC20Transfers(ctx context.Context, address string, page, row int) ([]model.Transfer, error)
}

// Options tunes a Pipeline.
type Options struct {
	TokenContract string
	HubAddress    string
	Symbol        string
	HolderRows    int
	TransferRows  int
	// MaxPages caps pages per holder; zero reads until an empty page.
	MaxPages int
	Workers  int
	Retry    pipeline.RetryPolicy
	Metrics  pipeline.Metrics
}

// Result summarizes one run.
type Result struct {
	Holders        int
	HolderFailures int
	Pages          int
	Fetched        int
	Matched        int
	Inserted       int64
}

// Pipeline lists token holders and loads their transfers to the hub.
type Pipeline struct {
	source Source
	loader storage.TransferLoader
	opts   Options
	logger *zap.Logger
}

func New(source Source, loader storage.TransferLoader, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.HolderRows <= 0 {
		opts.HolderRows = 100
	}
	if opts.TransferRows <= 0 {
		opts.TransferRows = 40
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = pipeline.DefaultRetryPolicy(opts.Retry.Delay)
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Pipeline{source: source, loader: loader, opts: opts, logger: logger}
}

// Run fetches, filters and loads transfers. A holder whose pages cannot be
// read is logged and skipped; failing to list holders or to load aborts.
func (p *Pipeline) Run(ctx context.Context) (res Result, err error) {
	defer func() {
		state := "idle"
		if err != nil {
			state = "aborted"
		}
		p.opts.Metrics.ObserveRun(state)
	}()

	started := time.Now()
	var holders []string
	err = p.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		holders, err = p.source.TokenHolders(ctx, p.opts.TokenContract, 0, p.opts.HolderRows)
		return err
	}, p.onRetry("holders"))
	p.opts.Metrics.ObserveStage("holders", err, started)
	if err != nil {
		return res, fmt.Errorf("list holders: %w", err)
	}
	res.Holders = len(holders)
	p.logger.Info("holders listed", zap.Int("holders", len(holders)))

	started = time.Now()
	perHolder := make([][]model.PublisherTransfer, len(holders))
	var pages, fetched, failures int64

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, holder := range holders {
		i, holder := i, holder
		g.Go(func() error {
			rows, n, total, err := p.holderTransfers(ctx, holder)
			atomic.AddInt64(&pages, int64(n))
			atomic.AddInt64(&fetched, int64(total))
			if err != nil {
				atomic.AddInt64(&failures, 1)
				p.logger.Warn("holder transfers failed", zap.String("holder", holder), zap.Error(err))
				return nil
			}
			perHolder[i] = rows
			return nil
		})
	}
	_ = g.Wait()
	if err = ctx.Err(); err != nil {
		return res, err
	}
	p.opts.Metrics.ObserveStage("transfers", nil, started)

	res.Pages = int(pages)
	res.Fetched = int(fetched)
	res.HolderFailures = int(failures)

	matched := dedupe(perHolder)
	res.Matched = len(matched)

	started = time.Now()
	err = p.opts.Retry.Do(ctx, func(ctx context.Context) error {
		if err := p.loader.EnsureTransfersSchema(ctx); err != nil {
			return err
		}
		inserted, err := p.loader.LoadTransfers(ctx, matched)
		if err != nil {
			return err
		}
		res.Inserted = inserted
		return nil
	}, p.onRetry("loading"))
	p.opts.Metrics.ObserveStage("loading", err, started)
	if err != nil {
		return res, fmt.Errorf("load transfers: %w", err)
	}
	p.opts.Metrics.ObserveRows(storage.TransfersTable, int64(len(matched)), res.Inserted)

	p.logger.Info("publisher transfers loaded",
		zap.Int("holders", res.Holders),
		zap.Int("holder_failures", res.HolderFailures),
		zap.Int("pages", res.Pages),
		zap.Int("fetched", res.Fetched),
		zap.Int("matched", res.Matched),
		zap.Int64("inserted", res.Inserted),
	)
	return res, nil
}

// holderTransfers pages through a holder's transfers until an empty page.
func (p *Pipeline) holderTransfers(ctx context.Context, holder string) ([]model.PublisherTransfer, int, int, error) {
	var out []model.PublisherTransfer
	pages, total := 0, 0
	for page := 0; p.opts.MaxPages <= 0 || page < p.opts.MaxPages; page++ {
		var batch []model.Transfer
		err := p.opts.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			batch, err = p.source.ERC20Transfers(ctx, holder, page, p.opts.TransferRows)
			return err
		}, p.onRetry("transfers"))
		if err != nil {
			return nil, pages, total, fmt.Errorf("page %d: %w", page, err)
		}
		pages++
		if len(batch) == 0 {
			break
		}
		total += len(batch)

		for _, t := range batch {
			if !p.matches(t) {
				continue
			}
			row, err := Normalize(holder, t)
			if err != nil {
				p.logger.Warn("skip transfer", zap.String("hash", t.Hash), zap.Error(err))
				continue
			}
			out = append(out, row)
		}
	}
	return out, pages, total, nil
}

func (p *Pipeline) matches(t model.Transfer) bool {
	return t.Symbol == p.opts.Symbol && strings.EqualFold(strings.TrimSpace(t.To), p.opts.HubAddress)
}

func (p *Pipeline) onRetry(stage string) func(int, error) {
	return func(attempt int, err error) {
		p.opts.Metrics.ObserveRetry(stage)
		p.logger.Warn("explorer call failed, retrying",
			zap.String("stage", stage),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

// Normalize scales the raw token value and tags the row with the holder.
func Normalize(holder string, t model.Transfer) (model.PublisherTransfer, error) {
	raw, err := decimal.NewFromString(strings.TrimSpace(t.Value))
	if err != nil {
		return model.PublisherTransfer{}, fmt.Errorf("parse value %q: %w", t.Value, err)
	}
	decimals := t.Decimals
	if decimals <= 0 {
		decimals = defaultDecimals
	}
	return model.PublisherTransfer{
		Hash:     model.NormalizeHash(t.Hash),
		CreateAt: time.Unix(t.CreateAt, 0).UTC(),
		Value:    raw.Shift(int32(-decimals)),
		Symbol:   t.Symbol,
		Pubber:   holder,
	}, nil
}

// dedupe flattens per-holder rows in holder order, keeping the first row per
// (hash, create_at).
func dedupe(perHolder [][]model.PublisherTransfer) []model.PublisherTransfer {
	type key struct {
		hash string
		at   int64
	}
	seen := make(map[key]struct{})
	var out []model.PublisherTransfer
	for _, rows := range perHolder {
		for _, r := range rows {
			k := key{r.Hash, r.CreateAt.Unix()}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(string, error, time.Time) {}
func (nopMetrics) ObserveRetry(string)                   {}
func (nopMetrics) ObserveRun(string)                     {}
func (nopMetrics) ObserveRows(string, int64, int64)      {}
func (nopMetrics) ObserveWatermark(uint64)               {}
