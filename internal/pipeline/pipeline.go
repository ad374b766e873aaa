package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/storm-data-radar/internal/domain"
	"github.com/couchcryptid/storm-data-radar/internal/observability"
)

// BatchExtractor reads up to batchSize volume notices from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer turns a volume notice into a serialized volume summary.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple volume summaries to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	defaultReadAttempts = 3
	defaultReadBackoff  = 500 * time.Millisecond
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReadRetry sets how many times a notice is summarized when its volume
// fails with a transient read error, and the delay before the first retry.
func WithReadRetry(attempts int, initial time.Duration) Option {
	return func(p *Pipeline) {
		p.readAttempts = max(1, attempts)
		p.readBackoff = initial
	}
}

// Pipeline indexes radar volumes: it extracts a batch of notices, summarizes
// the volume each names, loads the summaries and then commits every notice
// of the batch. Notices that can never be summarized are skipped; transient
// read failures are retried before the notice is given up on.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int

	readAttempts int
	readBackoff  time.Duration
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:    e,
		transformer:  t,
		loader:       l,
		logger:       logger,
		metrics:      metrics,
		batchSize:    batchSize,
		readAttempts: defaultReadAttempts,
		readBackoff:  defaultReadBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once the pipeline has written at least one
// summary, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not indexed any volumes yet")
	}
	return nil
}

// Ready reports whether the pipeline has written at least one summary.
func (p *Pipeline) Ready() bool { return p.ready.Load() }

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "read_attempts", p.readAttempts)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	b := &backoff{current: initialBackoff}
	for ctx.Err() == nil && p.processBatch(ctx, b) {
	}
	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// batch is a summarized batch. Every notice in it, loaded or skipped, is
// committed once the summaries are written.
type batch struct {
	notices   []domain.RawEvent
	summaries []domain.OutputEvent
}

// processBatch runs one extract-summarize-load cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, b *backoff) bool {
	start := time.Now()

	notices, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return b.wait(ctx)
	}
	if len(notices) == 0 {
		return true
	}
	b.reset()
	p.metrics.VolumesConsumed.Add(float64(len(notices)))
	p.metrics.BatchSize.Observe(float64(len(notices)))

	out := batch{notices: notices, summaries: make([]domain.OutputEvent, 0, len(notices))}
	for _, raw := range notices {
		summary, err := p.summarize(ctx, raw)
		if ctx.Err() != nil {
			// Uncommitted notices are redelivered after restart.
			return false
		}
		if err != nil {
			p.skip(raw, err)
			continue
		}
		out.summaries = append(out.summaries, summary)
	}

	if len(out.summaries) > 0 {
		if err := p.loader.LoadBatch(ctx, out.summaries); err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.logger.Error("load batch failed", "error", err, "batch_size", len(out.summaries))
			return b.wait(ctx)
		}
		p.metrics.SummariesProduced.Add(float64(len(out.summaries)))
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}

	for _, raw := range out.notices {
		p.commitOffset(ctx, raw)
	}
	return true
}

// summarize transforms one notice, retrying while its volume fails with a
// transient read error.
func (p *Pipeline) summarize(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	delay := p.readBackoff
	for attempt := 1; ; attempt++ {
		out, err := p.transformer.Transform(ctx, raw)
		if err == nil || ctx.Err() != nil || attempt >= p.readAttempts {
			return out, err
		}
		if _, retryable := classify(err); !retryable {
			return out, err
		}
		p.logger.Warn("volume read failed, retrying",
			"error", err,
			"key", string(raw.Key),
			"attempt", attempt,
			"delay", delay,
		)
		p.metrics.SummarizeRetries.Inc()
		if !retry.SleepWithContext(ctx, delay) {
			return domain.OutputEvent{}, ctx.Err()
		}
		delay = retry.NextBackoff(delay, maxBackoff)
	}
}

// skip records a notice that will be committed without a summary.
func (p *Pipeline) skip(raw domain.RawEvent, err error) {
	reason, _ := classify(err)
	p.logger.Warn("skipping volume notice",
		"reason", reason,
		"error", err,
		"key", string(raw.Key),
		"topic", raw.Topic,
		"partition", raw.Partition,
		"offset", raw.Offset,
	)
	p.metrics.SummarizeErrors.WithLabelValues(reason).Inc()
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoff paces retries of broker failures. It doubles per failure up to
// maxBackoff and resets after a successful extract.
type backoff struct {
	current time.Duration
}

func (b *backoff) reset() { b.current = initialBackoff }

// wait sleeps for the current delay and advances it. It returns false if
// ctx ends first.
func (b *backoff) wait(ctx context.Context) bool {
	if !retry.SleepWithContext(ctx, b.current) {
		return false
	}
	b.current = retry.NextBackoff(b.current, maxBackoff)
	return true
}
