package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// PeriodicEmbedding runs the embedding worker on a cron schedule so
// documents ingested outside a sync run still get embedded.
type PeriodicEmbedding struct {
	embeddings *EmbeddingService
	schedule   string
	logger     *slog.Logger
	cron       *cron.Cron
}

// NewPeriodicEmbedding creates a PeriodicEmbedding. An empty schedule
// disables it.
func NewPeriodicEmbedding(embeddings *EmbeddingService, schedule string, logger *slog.Logger) *PeriodicEmbedding {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodicEmbedding{
		embeddings: embeddings,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start registers the schedule and begins ticking. It is a no-op when
// no schedule is configured.
func (p *PeriodicEmbedding) Start(ctx context.Context) error {
	if p.schedule == "" {
		p.logger.Info("periodic embedding disabled, no schedule configured")
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(p.schedule, func() {
		report, runErr := p.embeddings.ProcessPending(ctx)
		if runErr != nil {
			p.logger.Error("periodic embedding run failed", slog.Any("error", runErr))
			return
		}
		if report.Processed > 0 || report.Failed > 0 {
			p.logger.Info("periodic embedding run",
				slog.Int("processed", report.Processed),
				slog.Int("failed", report.Failed),
				slog.Int64("remaining", report.Remaining))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule periodic embedding: %w", err)
	}

	p.cron = c
	c.Start()
	p.logger.Info("periodic embedding started", slog.String("schedule", p.schedule))
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (p *PeriodicEmbedding) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}
