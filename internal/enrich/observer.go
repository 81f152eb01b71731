package enrich

import (
	"time"

	"go.uber.org/zap"

	"publishScope/internal/model"
	"publishScope/internal/storage"
)

// Observer receives every lookup result after a batch completes.
type Observer interface {
	ObserveResult(Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Result)

func (f ObserverFunc) ObserveResult(r Result) { f(r) }

// LogObserver logs rejected and failed lookups.
type LogObserver struct {
	Logger *zap.Logger
}

func (o LogObserver) ObserveResult(r Result) {
	if o.Logger == nil {
		return
	}
	switch r.Outcome {
	case OutcomeOK:
		o.Logger.Debug("enriched transaction",
			zap.String("tx_hash", r.Hash),
			zap.String("message", r.Enrichment.Message),
			zap.Bool("cached", r.Cached),
		)
	case OutcomeRejected:
		o.Logger.Info("explorer rejected transaction", zap.String("tx_hash", r.Hash), zap.Error(r.Err))
	case OutcomeFailed:
		o.Logger.Warn("enrichment failed",
			zap.String("tx_hash", r.Hash),
			zap.Int("attempts", r.Attempts),
			zap.Error(r.Err),
		)
	}
}

// FailureSink appends rejected and failed hashes to a JSONL file.
type FailureSink struct {
	writer *storage.JSONLWriter
	logger *zap.Logger
	now    func() time.Time
}

func NewFailureSink(writer *storage.JSONLWriter, logger *zap.Logger) *FailureSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureSink{writer: writer, logger: logger, now: time.Now}
}

func (s *FailureSink) ObserveResult(r Result) {
	if r.Outcome == OutcomeOK {
		return
	}
	failure := model.EnrichmentFailure{
		TxHash:  r.Hash,
		Outcome: r.Outcome.String(),
		At:      s.now().UTC().Format(time.RFC3339),
	}
	if r.Err != nil {
		failure.Error = r.Err.Error()
	}
	if err := s.writer.Append(failure); err != nil {
		s.logger.Warn("write enrichment failure", zap.String("path", s.writer.Path()), zap.Error(err))
	}
}
