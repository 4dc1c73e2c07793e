package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/domain/progress"
	"github.com/recallhq/recall/infrastructure/connector"
)

// storeProgressEvery is how many stored documents pass between progress
// events during the storing stage.
const storeProgressEvery = 10

// syncRunTimeout bounds a detached ingestion run.
const syncRunTimeout = 30 * time.Minute

// SyncCounts are the per-run ingestion counters.
type SyncCounts struct {
	Fetched int
	Added   int
	Skipped int
	Failed  int
}

func (c SyncCounts) payload() map[string]int {
	return map[string]int{
		"fetched": c.Fetched,
		"added":   c.Added,
		"skipped": c.Skipped,
		"failed":  c.Failed,
	}
}

// Coordinator runs ingestion: fetch, normalize, persist, then hand the
// backlog to the embedding worker. Runs are detached; callers get a
// sync id immediately and follow progress over the event bus or the
// status endpoint.
type Coordinator struct {
	store       document.Store
	syncLogs    document.SyncLogStore
	credentials document.CredentialStore
	connectors  *connector.Registry
	embeddings  *EmbeddingService
	publisher   progress.Publisher
	logger      *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(
	store document.Store,
	syncLogs document.SyncLogStore,
	credentials document.CredentialStore,
	connectors *connector.Registry,
	embeddings *EmbeddingService,
	publisher progress.Publisher,
	logger *slog.Logger,
) *Coordinator {
	if publisher == nil {
		publisher = progress.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:       store,
		syncLogs:    syncLogs,
		credentials: credentials,
		connectors:  connectors,
		embeddings:  embeddings,
		publisher:   publisher,
		logger:      logger,
		running:     map[string]bool{},
	}
}

// StartSync validates the request, records an in-progress sync log and
// launches the run in the background. It returns the sync id without
// waiting for any fetching. full forces a complete backfill instead of
// resuming from the last successful cursor.
func (c *Coordinator) StartSync(ctx context.Context, userID string, source document.Source, full bool) (string, error) {
	conn, err := c.connectors.Get(source)
	if err != nil {
		return "", err
	}

	key := userID + ":" + string(source)
	c.mu.Lock()
	if c.running[key] {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %s for user %s", ErrSyncInProgress, source, userID)
	}
	c.running[key] = true
	c.mu.Unlock()

	syncID := uuid.NewString()
	log := document.NewSyncLog(syncID, userID, source)
	if err := c.syncLogs.Create(ctx, log); err != nil {
		c.release(key)
		return "", err
	}

	go func() {
		defer c.release(key)

		runCtx, cancel := context.WithTimeout(context.Background(), syncRunTimeout)
		defer cancel()

		c.run(runCtx, conn, log, full)
	}()

	return syncID, nil
}

// Status returns the sync log for a run.
func (c *Coordinator) Status(ctx context.Context, syncID string) (document.SyncLog, error) {
	return c.syncLogs.FindByID(ctx, syncID)
}

// History returns recent sync logs, newest first.
func (c *Coordinator) History(ctx context.Context, userID string, source document.Source, limit int) ([]document.SyncLog, error) {
	return c.syncLogs.History(ctx, userID, source, limit)
}

func (c *Coordinator) release(key string) {
	c.mu.Lock()
	delete(c.running, key)
	c.mu.Unlock()
}

// run executes one detached ingestion run end to end.
func (c *Coordinator) run(ctx context.Context, conn connector.Connector, log document.SyncLog, full bool) {
	source := log.Source()
	userID := log.UserID()
	logger := c.logger.With(
		slog.String("sync_id", log.ID()),
		slog.String("source", string(source)),
		slog.String("user_id", userID),
	)
	logger.Info("sync started", slog.Bool("full", full))

	token, err := c.credentials.AccessToken(ctx, userID, source)
	if err != nil {
		c.fail(ctx, log, logger, fmt.Errorf("resolve credentials: %w", err))
		return
	}

	since := time.Time{}
	if !full {
		if last, lastErr := c.syncLogs.LastSuccessful(ctx, userID, source); lastErr == nil {
			since = last.LastSyncTimestamp()
		} else if !errors.Is(lastErr, document.ErrNotFound) {
			c.fail(ctx, log, logger, fmt.Errorf("resolve sync cursor: %w", lastErr))
			return
		}
	}

	c.publishStage(log, "fetching", "fetching records", 5, SyncCounts{})

	docs, err := conn.Fetch(ctx, connector.FetchRequest{
		Token:  token,
		UserID: userID,
		Since:  since,
		OnProgress: func(fetched int) {
			c.publishStage(log, "fetching", fmt.Sprintf("fetched %d records", fetched), 20, SyncCounts{Fetched: fetched})
		},
	})
	if err != nil {
		c.fail(ctx, log, logger, fmt.Errorf("fetch: %w", err))
		return
	}

	counts := SyncCounts{Fetched: len(docs)}
	c.publishStage(log, "normalizing", fmt.Sprintf("normalizing %d records", len(docs)), 30, counts)
	c.publishStage(log, "storing", fmt.Sprintf("storing %d documents", len(docs)), 40, counts)

	counts = c.storeAll(ctx, docs, counts, log)

	updated := log.Succeed(counts.Fetched, counts.Added)
	if err := c.syncLogs.Update(ctx, updated); err != nil {
		logger.Error("failed to finalize sync log", slog.Any("error", err))
	}

	// The drain reports on this sync's stream so clients can follow the
	// embedding phase under the same id.
	c.publishStage(log, "embedding_start", "embedding new documents", 80, counts)
	if report, err := c.embeddings.DrainAllPending(ctx, log.ID(), userID); err != nil {
		// The documents are stored and flagged; a later worker pass
		// picks them up.
		logger.Warn("embedding drain incomplete",
			slog.Int("processed", report.Processed),
			slog.Any("error", err))
	}

	logger.Info("sync complete",
		slog.Int("fetched", counts.Fetched),
		slog.Int("added", counts.Added),
		slog.Int("skipped", counts.Skipped),
		slog.Int("failed", counts.Failed))

	c.publisher.Publish(progress.NewEvent(
		progress.SyncComplete(source),
		log.ID(),
		userID,
		progress.StagePayload("complete", "sync complete", 100, counts.payload()),
	))
}

// storeAll persists fetched documents one by one. Duplicates are
// counted as skipped and per-document failures do not abort the run.
func (c *Coordinator) storeAll(ctx context.Context, docs []document.Document, counts SyncCounts, log document.SyncLog) SyncCounts {
	total := len(docs)
	for i, doc := range docs {
		outcome, err := c.store.Create(ctx, doc)
		switch {
		case err != nil:
			counts.Failed++
			c.logger.Warn("failed to store document",
				slog.String("sync_id", log.ID()),
				slog.String("document_id", doc.DocumentID()),
				slog.Any("error", err))
		case outcome == document.OutcomeDuplicate:
			counts.Skipped++
		default:
			counts.Added++
		}

		done := i + 1
		if done%storeProgressEvery == 0 || done == total {
			percentage := 40 + done*40/total
			c.publishStage(log, "storing", fmt.Sprintf("stored %d of %d documents", done, total), percentage, counts)
		}
	}
	return counts
}

func (c *Coordinator) fail(ctx context.Context, log document.SyncLog, logger *slog.Logger, err error) {
	logger.Error("sync failed", slog.Any("error", err))

	if updateErr := c.syncLogs.Update(ctx, log.Fail(err.Error())); updateErr != nil {
		logger.Error("failed to record sync failure", slog.Any("error", updateErr))
	}

	c.publisher.Publish(progress.NewEvent(
		progress.SyncError(log.Source()),
		log.ID(),
		log.UserID(),
		map[string]any{"stage": "failed", "message": err.Error()},
	))
}

func (c *Coordinator) publishStage(log document.SyncLog, stage, message string, percentage int, counts SyncCounts) {
	c.publisher.Publish(progress.NewEvent(
		progress.SyncProgress(log.Source()),
		log.ID(),
		log.UserID(),
		progress.StagePayload(stage, message, percentage, counts.payload()),
	))
}
