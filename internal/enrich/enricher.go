// Package enrich resolves transaction metadata from the block explorer.
package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"publishScope/internal/explorer"
	"publishScope/internal/model"
)

// Outcome is the terminal state of one lookup.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRejected
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of looking up a single hash.
type Result struct {
	Hash       string
	Outcome    Outcome
	Enrichment model.Enrichment
	Err        error
	Attempts   int
	Cached     bool
}

// Report holds one result per distinct input hash, in first-seen order.
type Report struct {
	Results []Result
}

// Enrichments returns the explorer view of every hash that resolved.
func (r Report) Enrichments() map[string]model.Enrichment {
	out := make(map[string]model.Enrichment, len(r.Results))
	for _, res := range r.Results {
		if res.Outcome == OutcomeOK {
			out[res.Hash] = res.Enrichment
		}
	}
	return out
}

func (r Report) Rejected() []Result {
	return r.filter(OutcomeRejected)
}

func (r Report) Failed() []Result {
	return r.filter(OutcomeFailed)
}

// Err returns the first error that invalidates the whole batch, such as an
// explorer that refuses the API key.
func (r Report) Err() error {
	for _, res := range r.Results {
		if errors.Is(res.Err, explorer.ErrUnauthorized) {
			return res.Err
		}
	}
	return nil
}

// Count returns the number of results with the given outcome.
func (r Report) Count(o Outcome) int {
	return len(r.filter(o))
}

func (r Report) filter(o Outcome) []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == o {
			out = append(out, res)
		}
	}
	return out
}

// Source looks up a single transaction.
type Source interface {
	Transaction(ctx context.Context, hash string) (model.Enrichment, error)
	Endpoint() string
}

// Options tunes an Enricher.
type Options struct {
	Workers   int
	Attempts  int
	Delay     time.Duration
	CacheTTL  time.Duration
	CacheSize int
	Observers []Observer
}

// Enricher fans lookups out over a bounded worker pool.
type Enricher struct {
	source    Source
	workers   int
	attempts  int
	delay     time.Duration
	cache     *expirable.LRU[uint64, Result]
	observers []Observer
	logger    *zap.Logger
}

func New(source Source, opts Options, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}

	var cache *expirable.LRU[uint64, Result]
	if opts.CacheSize > 0 {
		cache = expirable.NewLRU[uint64, Result](opts.CacheSize, nil, opts.CacheTTL)
	}

	return &Enricher{
		source:    source,
		workers:   opts.Workers,
		attempts:  opts.Attempts,
		delay:     opts.Delay,
		cache:     cache,
		observers: opts.Observers,
		logger:    logger,
	}
}

// Enrich looks up every distinct hash. Individual failures never abort the
// batch; they are reported as Failed results. An unauthorized answer stops the
// remaining lookups and is surfaced through Report.Err.
func (e *Enricher) Enrich(ctx context.Context, hashes []string) Report {
	unique := dedupe(hashes)
	results := make([]Result, len(unique))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, hash := range unique {
		i, hash := i, hash
		g.Go(func() error {
			results[i] = e.lookup(ctx, hash)
			if errors.Is(results[i].Err, explorer.ErrUnauthorized) {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		for _, obs := range e.observers {
			obs.ObserveResult(res)
		}
	}

	report := Report{Results: results}
	e.logger.Info("enrichment finished",
		zap.Int("hashes", len(unique)),
		zap.Int("ok", report.Count(OutcomeOK)),
		zap.Int("rejected", report.Count(OutcomeRejected)),
		zap.Int("failed", report.Count(OutcomeFailed)),
	)
	return report
}

func (e *Enricher) lookup(ctx context.Context, hash string) Result {
	key := e.cacheKey(hash)
	if e.cache != nil {
		if res, ok := e.cache.Get(key); ok {
			res.Cached = true
			return res
		}
	}

	res := Result{Hash: hash}
	for attempt := 1; attempt <= e.attempts; attempt++ {
		res.Attempts = attempt
		enrichment, err := e.source.Transaction(ctx, hash)
		if err == nil {
			res.Outcome = OutcomeOK
			res.Enrichment = enrichment
			res.Err = nil
			break
		}
		res.Err = err
		if errors.Is(err, explorer.ErrRejected) {
			res.Outcome = OutcomeRejected
			break
		}
		res.Outcome = OutcomeFailed
		if errors.Is(err, explorer.ErrUnauthorized) || attempt == e.attempts || ctx.Err() != nil {
			break
		}
		if !sleep(ctx, e.delay) {
			break
		}
	}

	if e.cache != nil && res.Outcome != OutcomeFailed {
		e.cache.Add(key, res)
	}
	return res
}

func (e *Enricher) cacheKey(hash string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(e.source.Endpoint())
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(hash)
	return d.Sum64()
}

func dedupe(hashes []string) []string {
	seen := make(map[string]struct{}, len(hashes))
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		h = model.NormalizeHash(h)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
