package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/domain/progress"
	"github.com/recallhq/recall/infrastructure/connector"
)

type ingestFixture struct {
	coordinator *Coordinator
	store       *fakeStore
	syncLogs    *fakeSyncLogStore
	publisher   *capturePublisher
	connector   *fakeConnector
}

func newIngestFixture(t *testing.T, conn *fakeConnector) *ingestFixture {
	t.Helper()
	store := newFakeStore()
	syncLogs := newFakeSyncLogStore()
	publisher := &capturePublisher{}
	embeddings := NewEmbeddingService(store, &fakeCostStore{}, newFakeEmbedder(), publisher, nil, 50, 0.02)
	coordinator := NewCoordinator(
		store, syncLogs, &fakeCredentials{token: "token-1"},
		connector.NewRegistry(conn), embeddings, publisher, nil,
	)
	return &ingestFixture{
		coordinator: coordinator,
		store:       store,
		syncLogs:    syncLogs,
		publisher:   publisher,
		connector:   conn,
	}
}

func emailBatch(n int) []document.Document {
	docs := make([]document.Document, n)
	for i := range docs {
		docs[i] = document.New(
			fmt.Sprintf("email_msg%03d", i), "u1",
			document.SourceEmail, document.TypeMessage,
			fmt.Sprintf("message body %d", i), time.Now(),
		)
	}
	return docs
}

func waitTerminal(t *testing.T, logs *fakeSyncLogStore, syncID string) document.SyncLog {
	t.Helper()
	var log document.SyncLog
	require.Eventually(t, func() bool {
		var err error
		log, err = logs.FindByID(context.Background(), syncID)
		return err == nil && log.Status().Terminal()
	}, 10*time.Second, 20*time.Millisecond)
	return log
}

func TestCoordinator_StartSync_FreshRun(t *testing.T) {
	f := newIngestFixture(t, &fakeConnector{source: document.SourceEmail, docs: emailBatch(12)})

	syncID, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)
	require.NotEmpty(t, syncID)

	log := waitTerminal(t, f.syncLogs, syncID)
	require.Equal(t, document.SyncSuccess, log.Status())
	require.Equal(t, 12, log.DocumentsFetched())
	require.Equal(t, 12, log.DocumentsStored())
	require.False(t, log.LastSyncTimestamp().IsZero())

	// Every stored document went through the embedding drain.
	backlog, err := f.store.CountNeedingEmbedding(context.Background())
	require.NoError(t, err)
	require.Zero(t, backlog)

	events := f.publisher.byChannel(progress.SyncComplete(document.SourceEmail))
	require.Len(t, events, 1)
	require.Equal(t, 12, events[0].Payload()["added"])
	require.Equal(t, 100, events[0].Payload()["percentage"])
}

func TestCoordinator_StartSync_StageSequence(t *testing.T) {
	f := newIngestFixture(t, &fakeConnector{source: document.SourceEmail, docs: emailBatch(12)})

	syncID, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)
	waitTerminal(t, f.syncLogs, syncID)

	// The completion event lands after the embedding drain.
	require.Eventually(t, func() bool {
		return len(f.publisher.byChannel(progress.SyncComplete(document.SourceEmail))) == 1
	}, 10*time.Second, 20*time.Millisecond)

	events := f.publisher.byChannel(progress.SyncProgress(document.SourceEmail))
	var stages []string
	for _, e := range events {
		require.Equal(t, syncID, e.ScopeID())
		require.Equal(t, "u1", e.UserID())
		stage := e.Payload()["stage"].(string)
		if len(stages) == 0 || stages[len(stages)-1] != stage {
			stages = append(stages, stage)
		}
	}
	require.Equal(t, []string{"fetching", "normalizing", "storing", "embedding_start"}, stages)
}

func TestCoordinator_StartSync_EmbeddingEventsShareSyncID(t *testing.T) {
	f := newIngestFixture(t, &fakeConnector{source: document.SourceEmail, docs: emailBatch(5)})

	syncID, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)
	waitTerminal(t, f.syncLogs, syncID)

	require.Eventually(t, func() bool {
		return len(f.publisher.byChannel(progress.ChannelEmbeddings)) > 0
	}, 10*time.Second, 20*time.Millisecond)

	for _, e := range f.publisher.byChannel(progress.ChannelEmbeddings) {
		require.Equal(t, syncID, e.ScopeID())
		require.Equal(t, "u1", e.UserID())
	}
}

func TestCoordinator_StartSync_RerunSkipsDuplicates(t *testing.T) {
	f := newIngestFixture(t, &fakeConnector{source: document.SourceEmail, docs: emailBatch(8)})

	first, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)
	waitTerminal(t, f.syncLogs, first)

	second, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)
	log := waitTerminal(t, f.syncLogs, second)

	require.Equal(t, document.SyncSuccess, log.Status())
	require.Equal(t, 8, log.DocumentsFetched())
	require.Zero(t, log.DocumentsStored())

	// The second run resumed from the first run's cursor.
	f.connector.mu.Lock()
	since := f.connector.lastSince
	f.connector.mu.Unlock()
	require.False(t, since.IsZero())
}

func TestCoordinator_StartSync_FullIgnoresCursor(t *testing.T) {
	f := newIngestFixture(t, &fakeConnector{source: document.SourceEmail, docs: emailBatch(3)})

	first, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)
	waitTerminal(t, f.syncLogs, first)

	second, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, true)
	require.NoError(t, err)
	waitTerminal(t, f.syncLogs, second)

	f.connector.mu.Lock()
	since := f.connector.lastSince
	f.connector.mu.Unlock()
	require.True(t, since.IsZero())
}

func TestCoordinator_StartSync_SingleFlight(t *testing.T) {
	gate := make(chan struct{})
	f := newIngestFixture(t, &fakeConnector{source: document.SourceEmail, docs: emailBatch(1), gate: gate})

	first, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)

	_, err = f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.ErrorIs(t, err, ErrSyncInProgress)

	close(gate)
	waitTerminal(t, f.syncLogs, first)

	// The slot is released once the run finishes.
	require.Eventually(t, func() bool {
		_, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)
}

func TestCoordinator_StartSync_UnknownSource(t *testing.T) {
	f := newIngestFixture(t, &fakeConnector{source: document.SourceEmail})

	_, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceCalendar, false)
	require.ErrorIs(t, err, connector.ErrUnknownSource)
}

func TestCoordinator_Run_FetchFailure(t *testing.T) {
	f := newIngestFixture(t, &fakeConnector{source: document.SourceEmail, fetchErr: errors.New("upstream down")})

	syncID, err := f.coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)

	log := waitTerminal(t, f.syncLogs, syncID)
	require.Equal(t, document.SyncFailed, log.Status())
	require.Contains(t, log.ErrorMessage(), "fetch")
	require.Contains(t, log.ErrorMessage(), "upstream down")

	events := f.publisher.byChannel(progress.SyncError(document.SourceEmail))
	require.Len(t, events, 1)
	require.Equal(t, "failed", events[0].Payload()["stage"])
}

func TestCoordinator_Run_CredentialFailure(t *testing.T) {
	store := newFakeStore()
	syncLogs := newFakeSyncLogStore()
	embeddings := NewEmbeddingService(store, &fakeCostStore{}, newFakeEmbedder(), nil, nil, 50, 0.02)
	coordinator := NewCoordinator(
		store, syncLogs, &fakeCredentials{err: errors.New("token expired")},
		connector.NewRegistry(&fakeConnector{source: document.SourceEmail}),
		embeddings, nil, nil,
	)

	syncID, err := coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)

	log := waitTerminal(t, syncLogs, syncID)
	require.Equal(t, document.SyncFailed, log.Status())
	require.Contains(t, log.ErrorMessage(), "credentials")
}

func TestCoordinator_Run_PerDocumentFailureDoesNotAbort(t *testing.T) {
	docs := emailBatch(4)
	// One document with an invalid user id fails validation at the store;
	// the other three land.
	docs[1] = document.New("email_bad", "", document.SourceEmail, document.TypeMessage, "body", time.Now())

	store := newFakeStore()
	syncLogs := newFakeSyncLogStore()
	publisher := &capturePublisher{}
	embeddings := NewEmbeddingService(store, &fakeCostStore{}, newFakeEmbedder(), nil, nil, 50, 0.02)
	coordinator := NewCoordinator(
		&validatingStore{fakeStore: store}, syncLogs, &fakeCredentials{token: "t"},
		connector.NewRegistry(&fakeConnector{source: document.SourceEmail, docs: docs}),
		embeddings, publisher, nil,
	)

	syncID, err := coordinator.StartSync(context.Background(), "u1", document.SourceEmail, false)
	require.NoError(t, err)

	log := waitTerminal(t, syncLogs, syncID)
	require.Equal(t, document.SyncSuccess, log.Status())
	require.Equal(t, 4, log.DocumentsFetched())
	require.Equal(t, 3, log.DocumentsStored())

	events := publisher.byChannel(progress.SyncComplete(document.SourceEmail))
	require.Len(t, events, 1)
	require.Equal(t, 1, events[0].Payload()["failed"])
}

// validatingStore rejects invalid documents like the real store does.
type validatingStore struct {
	*fakeStore
}

func (s *validatingStore) Create(ctx context.Context, doc document.Document) (document.CreateOutcome, error) {
	if err := doc.Validate(); err != nil {
		return document.OutcomeInserted, err
	}
	return s.fakeStore.Create(ctx, doc)
}
