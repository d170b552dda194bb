package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fireflies-dealcloud-sync/internal/common/logger"
	"fireflies-dealcloud-sync/internal/common/metrics"
	"fireflies-dealcloud-sync/internal/fireflies"
	"fireflies-dealcloud-sync/internal/store"
)

// TranscriptSource is the Fireflies surface the controller depends on.
type TranscriptSource interface {
	FetchTranscripts(ctx context.Context, limit int) ([]fireflies.Transcript, error)
	FetchTranscriptByID(ctx context.Context, transcriptID string) (*fireflies.Transcript, error)
}

// defaultHardCap bounds a single run regardless of the caller-supplied limit.
const defaultHardCap = 500

// Controller drives full and single-transcript runs. Transcripts are
// processed strictly sequentially; the query cache and rate-limit delay are
// run-scoped and not safe for concurrent mutation. Serializing concurrent
// runs is the trigger layer's responsibility.
type Controller struct {
	source       TranscriptSource
	crm          CRM
	engine       *Engine
	processed    store.ProcessedSet
	defaultLimit int
	hardCap      int
	logger       logger.Logger
	now          func() time.Time
}

type ControllerOptions struct {
	Source       TranscriptSource
	CRM          CRM
	Engine       *Engine
	Processed    store.ProcessedSet // optional
	DefaultLimit int
	HardCap      int
	Logger       logger.Logger
}

func NewController(opts ControllerOptions) *Controller {
	if opts.HardCap <= 0 {
		opts.HardCap = defaultHardCap
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Controller{
		source:       opts.Source,
		crm:          opts.CRM,
		engine:       opts.Engine,
		processed:    opts.Processed,
		defaultLimit: opts.DefaultLimit,
		hardCap:      opts.HardCap,
		logger:       opts.Logger,
		now:          time.Now,
	}
}

// SyncAll runs a full pass: fetch, filter already-processed ids, process
// sequentially in fetch order, aggregate. A fetch failure yields a
// zero-processed summary rather than propagating.
func (c *Controller) SyncAll(ctx context.Context, limit int, trigger string) Summary {
	runID := uuid.NewString()
	start := c.now()

	if limit <= 0 {
		limit = c.defaultLimit
	}
	if limit > c.hardCap {
		c.logger.Warn("Requested limit exceeds hard cap, clamping", map[string]interface{}{
			"requested": limit,
			"cap":       c.hardCap,
		})
		limit = c.hardCap
	}

	c.logger.Info("Starting sync run", map[string]interface{}{
		"runId":   runID,
		"limit":   limit,
		"trigger": trigger,
	})

	summary := Summary{
		Success: true,
		RunID:   runID,
		Results: []SyncResult{},
	}

	c.crm.ClearCache()

	transcripts, err := c.source.FetchTranscripts(ctx, limit)
	if err != nil {
		c.logger.Error("Transcript fetch failed, run produces no work", map[string]interface{}{
			"runId": runID,
			"error": err.Error(),
		})
		metrics.SyncRunsTotal.WithLabelValues(trigger).Inc()
		return summary
	}
	summary.TranscriptsFetched = len(transcripts)

	fresh := c.filterProcessed(ctx, transcripts)
	c.logger.Info("Transcripts to process", map[string]interface{}{
		"runId": runID,
		"new":   len(fresh),
		"total": len(transcripts),
	})

	for i := range fresh {
		result := c.engine.ProcessTranscript(ctx, &fresh[i])
		summary.Results = append(summary.Results, result)

		switch result.Status {
		case StatusCreated:
			summary.CreatedCount++
		case StatusUpdated:
			summary.UpdatedCount++
		case StatusSkipped:
			summary.SkippedCount++
		case StatusError:
			summary.ErrorCount++
		}
		summary.ContactsCreated += len(result.CreatedContacts)
	}
	summary.ProcessedCount = len(summary.Results)

	c.recordProcessed(ctx, summary.Results)

	elapsed := c.now().Sub(start)
	summary.DurationSeconds = elapsed.Seconds()

	metrics.SyncRunsTotal.WithLabelValues(trigger).Inc()
	metrics.SyncRunDuration.Observe(elapsed.Seconds())

	c.logger.Info("Sync run complete", map[string]interface{}{
		"runId":           runID,
		"processed":       summary.ProcessedCount,
		"created":         summary.CreatedCount,
		"updated":         summary.UpdatedCount,
		"skipped":         summary.SkippedCount,
		"errors":          summary.ErrorCount,
		"contactsCreated": summary.ContactsCreated,
		"durationSeconds": summary.DurationSeconds,
	})

	return summary
}

// SyncOne processes a single transcript by id. A missing transcript is a
// lookup failure, not a pipeline error.
func (c *Controller) SyncOne(ctx context.Context, transcriptID string) OneResult {
	c.logger.Info("Syncing single transcript", map[string]interface{}{
		"transcriptId": transcriptID,
	})

	transcript, err := c.source.FetchTranscriptByID(ctx, transcriptID)
	if err != nil {
		return OneResult{Success: false, Error: err.Error()}
	}

	result := c.engine.ProcessTranscript(ctx, transcript)
	return OneResult{
		Success: result.Status != StatusError,
		Result:  &result,
	}
}

func (c *Controller) filterProcessed(ctx context.Context, transcripts []fireflies.Transcript) []fireflies.Transcript {
	if c.processed == nil {
		return transcripts
	}

	fresh := make([]fireflies.Transcript, 0, len(transcripts))
	for _, t := range transcripts {
		seen, err := c.processed.Contains(ctx, t.ID)
		if err != nil {
			// A store failure must not lose work; the subject lookup still
			// prevents duplicates.
			c.logger.Warn("Processed-set lookup failed, treating as new", map[string]interface{}{
				"transcriptId": t.ID,
				"error":        err.Error(),
			})
			fresh = append(fresh, t)
			continue
		}
		if !seen {
			fresh = append(fresh, t)
		}
	}
	return fresh
}

func (c *Controller) recordProcessed(ctx context.Context, results []SyncResult) {
	if c.processed == nil {
		return
	}

	var ids []string
	for _, r := range results {
		if r.Status != StatusError {
			ids = append(ids, r.TranscriptID)
		}
	}
	if len(ids) == 0 {
		return
	}

	if err := c.processed.AddAll(ctx, ids); err != nil {
		c.logger.Warn("Failed to record processed transcripts", map[string]interface{}{
			"count": len(ids),
			"error": err.Error(),
		})
	}
}
