package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumina-signage/backend/internal/blobcache"
	"github.com/lumina-signage/backend/pkg/queue"
)

// PrefetchProcessor processes media prefetch jobs: download the creative
// into the blob cache so the first trigger plays without waiting.
type PrefetchProcessor struct {
	cache  *blobcache.Cache
	queue  *queue.Queue
	logger *zap.Logger
}

// NewPrefetchProcessor creates a media prefetch processor.
func NewPrefetchProcessor(cache *blobcache.Cache, q *queue.Queue, logger *zap.Logger) *PrefetchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrefetchProcessor{cache: cache, queue: q, logger: logger}
}

// Process executes one media prefetch job.
func (p *PrefetchProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeMediaPrefetch {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.MediaPrefetchPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	id := blobcache.Key(payload.ContentRef)
	if p.cache.Has(id) {
		p.logger.Debug("creative already cached", zap.String("cache_id", id))
		return nil
	}

	start := time.Now()
	if _, err := p.cache.EnsureCached(ctx, payload.ContentRef, id, nil); err != nil {
		return fmt.Errorf("cache creative: %w", err)
	}
	p.logger.Info("creative prefetched",
		zap.String("schedule_id", payload.ScheduleID.String()),
		zap.String("display_id", payload.DisplayID.String()),
		zap.String("cache_id", id),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *PrefetchProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("prefetch worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
