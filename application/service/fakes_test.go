package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/domain/progress"
	"github.com/recallhq/recall/infrastructure/connector"
	"github.com/recallhq/recall/infrastructure/provider"
)

// fakeStore is an in-memory document.Store backed by a map, with hooks
// to observe search options and inject failures.
type fakeStore struct {
	mu    sync.Mutex
	order []string
	docs  map[string]document.Document

	matches   []document.Match
	createErr error
	batchErr  error

	searchCalls int
	hybridCalls int
	lastOpts    document.SearchOptions
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]document.Document{}}
}

func (s *fakeStore) Create(_ context.Context, doc document.Document) (document.CreateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return document.OutcomeInserted, s.createErr
	}
	if _, ok := s.docs[doc.DocumentID()]; ok {
		return document.OutcomeDuplicate, nil
	}
	s.docs[doc.DocumentID()] = doc
	s.order = append(s.order, doc.DocumentID())
	return document.OutcomeInserted, nil
}

func (s *fakeStore) FindByID(_ context.Context, documentID string) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return document.Document{}, document.ErrNotFound
	}
	return doc, nil
}

func (s *fakeStore) FindNeedingEmbedding(_ context.Context, limit int) ([]document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []document.Document
	for _, id := range s.order {
		if doc := s.docs[id]; doc.NeedsEmbedding() {
			out = append(out, doc)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) CountNeedingEmbedding(ctx context.Context) (int64, error) {
	docs, _ := s.FindNeedingEmbedding(ctx, len(s.order)+1)
	return int64(len(docs)), nil
}

func (s *fakeStore) BatchUpdateEmbeddings(_ context.Context, updates []document.EmbeddingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return s.batchErr
	}
	for _, u := range updates {
		doc, ok := s.docs[u.DocumentID()]
		if !ok {
			return document.ErrNotFound
		}
		s.docs[u.DocumentID()] = doc.WithEmbedding(u.Vector(), u.Model(), u.Tokens(), u.GeneratedAt())
	}
	return nil
}

func (s *fakeStore) MarkForReembedding(_ context.Context, ids ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, doc := range s.docs {
		if len(ids) > 0 && !contains(ids, id) {
			continue
		}
		if doc.Content() == "" {
			continue
		}
		s.docs[id] = doc.MarkStale()
		n++
	}
	return n, nil
}

func (s *fakeStore) Search(_ context.Context, _ []float32, opts document.SearchOptions) ([]document.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCalls++
	s.lastOpts = opts
	return s.filtered(opts), nil
}

func (s *fakeStore) HybridSearch(_ context.Context, _ []float32, _ []string, opts document.SearchOptions) ([]document.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hybridCalls++
	s.lastOpts = opts
	return s.filtered(opts), nil
}

func (s *fakeStore) filtered(opts document.SearchOptions) []document.Match {
	var out []document.Match
	for _, m := range s.matches {
		if m.Similarity() >= opts.MinSimilarity() {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeStore) FindSimilar(context.Context, string, int) ([]document.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches, nil
}

func (s *fakeStore) Stats(context.Context) (document.EmbeddingStats, error) {
	return document.EmbeddingStats{}, nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// fakeEmbedder serves a fixed vector and counts calls; failBatchOn
// fails the nth EmbedBatch call (1-based).
type fakeEmbedder struct {
	mu          sync.Mutex
	vector      []float32
	embedCalls  int
	batchCalls  int
	failBatchOn int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) (provider.Embedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embedCalls++
	return provider.NewEmbedding(e.vector, provider.EstimateTokens(text)), nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([]provider.Embedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batchCalls++
	if e.failBatchOn != 0 && e.batchCalls == e.failBatchOn {
		return nil, fmt.Errorf("embed batch: simulated provider failure")
	}
	out := make([]provider.Embedding, len(texts))
	for i, t := range texts {
		out[i] = provider.NewEmbedding(e.vector, provider.EstimateTokens(t))
	}
	return out, nil
}

func (e *fakeEmbedder) HealthCheck(context.Context) error { return nil }
func (e *fakeEmbedder) Model() string                     { return "fake-embedding-model" }
func (e *fakeEmbedder) Dimensions() int                   { return len(e.vector) }

// fakeGenerator replies with a canned answer.
type fakeGenerator struct {
	text        string
	generateErr error
	prompts     []string
	mu          sync.Mutex
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (provider.Generation, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.generateErr != nil {
		return provider.Generation{}, g.generateErr
	}
	stats := provider.TokenStats{Prompt: 10, Completion: 5, Total: 15}
	return provider.NewGeneration(g.text, stats, time.Millisecond, "fake-chat-model"), nil
}

func (g *fakeGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan provider.StreamChunk, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.generateErr != nil {
		return nil, g.generateErr
	}
	out := make(chan provider.StreamChunk, 4)
	go func() {
		defer close(out)
		for _, piece := range []string{g.text[:len(g.text)/2], g.text[len(g.text)/2:]} {
			out <- provider.StreamChunk{Text: piece}
		}
		out <- provider.StreamChunk{Done: true}
	}()
	return out, nil
}

func (g *fakeGenerator) Chat(ctx context.Context, _ []provider.Message) (provider.Generation, error) {
	return g.Generate(ctx, "")
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []progress.Event
}

func (p *capturePublisher) Publish(event progress.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) byChannel(channel progress.Channel) []progress.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []progress.Event
	for _, e := range p.events {
		if e.Channel() == channel {
			out = append(out, e)
		}
	}
	return out
}

// fakeSyncLogStore keeps sync logs in a map, enforcing terminal-state
// immutability like the real store.
type fakeSyncLogStore struct {
	mu   sync.Mutex
	logs map[string]document.SyncLog
}

func newFakeSyncLogStore() *fakeSyncLogStore {
	return &fakeSyncLogStore{logs: map[string]document.SyncLog{}}
}

func (s *fakeSyncLogStore) Create(_ context.Context, log document.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[log.ID()]; ok {
		return document.ErrDuplicate
	}
	s.logs[log.ID()] = log
	return nil
}

func (s *fakeSyncLogStore) Update(_ context.Context, log document.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.logs[log.ID()]
	if !ok {
		return document.ErrNotFound
	}
	if current.Status().Terminal() {
		return fmt.Errorf("%w: sync log %s already %s", document.ErrValidation, log.ID(), current.Status())
	}
	s.logs[log.ID()] = log
	return nil
}

func (s *fakeSyncLogStore) FindByID(_ context.Context, id string) (document.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return document.SyncLog{}, document.ErrNotFound
	}
	return log, nil
}

func (s *fakeSyncLogStore) History(_ context.Context, userID string, source document.Source, limit int) ([]document.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []document.SyncLog
	for _, log := range s.logs {
		if userID != "" && log.UserID() != userID {
			continue
		}
		if source != "" && log.Source() != source {
			continue
		}
		out = append(out, log)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeSyncLogStore) LastSuccessful(_ context.Context, userID string, source document.Source) (document.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best document.SyncLog
	found := false
	for _, log := range s.logs {
		if log.UserID() != userID || log.Source() != source || log.Status() != document.SyncSuccess {
			continue
		}
		if !found || log.CompletedAt().After(best.CompletedAt()) {
			best = log
			found = true
		}
	}
	if !found {
		return document.SyncLog{}, document.ErrNotFound
	}
	return best, nil
}

// fakeCostStore collects audit rows.
type fakeCostStore struct {
	mu   sync.Mutex
	rows []document.EmbeddingCost
}

func (s *fakeCostStore) Create(_ context.Context, cost document.EmbeddingCost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, cost)
	return nil
}

func (s *fakeCostStore) Recent(context.Context, int) ([]document.EmbeddingCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, nil
}

func (s *fakeCostStore) Totals(context.Context) (int64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens int64
	var cost float64
	for _, r := range s.rows {
		tokens += int64(r.TotalTokens())
		cost += r.EstimatedCost()
	}
	return tokens, cost, nil
}

func (s *fakeCostStore) all() []document.EmbeddingCost {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]document.EmbeddingCost, len(s.rows))
	copy(out, s.rows)
	return out
}

// fakeConversationStore keeps conversations and turns in memory.
type fakeConversationStore struct {
	mu            sync.Mutex
	conversations map[string]string
	turns         []document.Turn
	appendErr     error
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{conversations: map[string]string{}}
}

func (s *fakeConversationStore) CreateConversation(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = userID
	return nil
}

func (s *fakeConversationStore) Exists(_ context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conversations[conversationID]
	return ok, nil
}

func (s *fakeConversationStore) AppendTurn(_ context.Context, turn document.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.turns = append(s.turns, turn)
	return nil
}

func (s *fakeConversationStore) Turns(_ context.Context, conversationID string, limit int) ([]document.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []document.Turn
	for _, t := range s.turns {
		if t.ConversationID() == conversationID {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeConversationStore) allTurns() []document.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]document.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// fakeCredentials serves a static token.
type fakeCredentials struct {
	token string
	err   error
}

func (c *fakeCredentials) AccessToken(context.Context, string, document.Source) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.token, nil
}

// fakeConnector serves canned documents; a non-nil gate blocks Fetch
// until it is closed.
type fakeConnector struct {
	source   document.Source
	docs     []document.Document
	fetchErr error
	gate     chan struct{}

	mu        sync.Mutex
	lastSince time.Time
}

func (c *fakeConnector) Source() document.Source { return c.source }

func (c *fakeConnector) Validate(context.Context, string) error { return nil }

func (c *fakeConnector) Fetch(ctx context.Context, req connector.FetchRequest) ([]document.Document, error) {
	c.mu.Lock()
	c.lastSince = req.Since
	c.mu.Unlock()

	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return c.docs, nil
}
