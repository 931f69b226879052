package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
)

// BatchExtractor reads up to batchSize raw messages from the signal source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Transformer converts a raw message into a validated signal envelope.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawMessage) (domain.SignalEnvelope, error)
}

// BatchLoader persists multiple signal envelopes.
type BatchLoader interface {
	LoadBatch(ctx context.Context, envelopes []domain.SignalEnvelope) error
}

// RescoreFunc recomputes the scores fed by a unit's signals on date.
type RescoreFunc func(ctx context.Context, unitID, date string) error

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline orchestrates the extract-transform-load loop for incoming signals.
// After a batch is stored, every (unit, date) touched by a time-series
// signal is rescored once.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	rescore     RescoreFunc
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability. rescore
// may be nil, in which case signals are stored without rescoring.
func New(e BatchExtractor, t Transformer, l BatchLoader, rescore RescoreFunc, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		rescore:     rescore,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil if the pipeline has loaded at least one batch,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// Run executes the batch ETL loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// transformAndLoad transforms each message in the batch, loads the successes,
// commits offsets, and rescores the touched unit days. Malformed messages are
// committed and skipped so they cannot block the partition. Returns the
// number of loaded envelopes and false if the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawMessage, backoff *time.Duration) (int, bool) {
	envelopes := make([]domain.SignalEnvelope, 0, len(rawBatch))
	successfulRaws := make([]domain.RawMessage, 0, len(rawBatch))

	for _, raw := range rawBatch {
		env, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		envelopes = append(envelopes, env)
		successfulRaws = append(successfulRaws, raw)
	}

	if len(envelopes) == 0 {
		return 0, true
	}

	if err := p.loader.LoadBatch(ctx, envelopes); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(envelopes))
		return 0, p.backoffOrStop(ctx, backoff)
	}

	for _, env := range envelopes {
		p.metrics.SignalsIngested.WithLabelValues(env.Kind).Inc()
	}
	for _, raw := range successfulRaws {
		p.commitOffset(ctx, raw)
	}
	p.rescoreTouched(ctx, envelopes)

	return len(envelopes), true
}

type unitDay struct {
	unitID string
	date   string
}

// touchedUnitDays lists the distinct (unit, date) pairs of the time-series
// envelopes in first-seen order.
func touchedUnitDays(envelopes []domain.SignalEnvelope) []unitDay {
	touched := make([]unitDay, 0, len(envelopes))
	seen := make(map[unitDay]bool, len(envelopes))
	for _, env := range envelopes {
		date := env.Date()
		if date == "" {
			continue
		}
		k := unitDay{unitID: env.UnitID(), date: date}
		if !seen[k] {
			seen[k] = true
			touched = append(touched, k)
		}
	}
	return touched
}

// rescoreTouched rescores each touched unit day. Failures are logged and
// counted; the signals are already stored and committed.
func (p *Pipeline) rescoreTouched(ctx context.Context, envelopes []domain.SignalEnvelope) {
	if p.rescore == nil {
		return
	}
	for _, k := range touchedUnitDays(envelopes) {
		if err := p.rescore(ctx, k.unitID, k.date); err != nil {
			p.logger.Warn("rescore after ingest failed", "unit_id", k.unitID, "date", k.date, "error", err)
			p.metrics.IngestRescores.WithLabelValues("error").Inc()
			continue
		}
		p.metrics.IngestRescores.WithLabelValues("ok").Inc()
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
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
