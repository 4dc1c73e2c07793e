package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/internal/database"
)

// DocumentStore implements document.Store on GORM. Vector search runs
// native pgvector SQL on PostgreSQL and falls back to in-process cosine
// scoring on SQLite.
type DocumentStore struct {
	db         database.Database
	dimensions int
}

// NewDocumentStore creates a DocumentStore expecting vectors of the
// given width.
func NewDocumentStore(db database.Database, dimensions int) *DocumentStore {
	return &DocumentStore{db: db, dimensions: dimensions}
}

// Create inserts a document. A row with the same document_id already
// present yields OutcomeDuplicate without an error.
func (s *DocumentStore) Create(ctx context.Context, doc document.Document) (document.CreateOutcome, error) {
	if err := doc.Validate(); err != nil {
		return document.OutcomeInserted, err
	}
	if doc.HasEmbedding() && len(doc.Embedding()) != s.dimensions {
		return document.OutcomeInserted, fmt.Errorf("%w: got %d, want %d",
			document.ErrDimensionMismatch, len(doc.Embedding()), s.dimensions)
	}

	entity := documentToEntity(doc)
	if err := s.db.Session(ctx).Create(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return document.OutcomeDuplicate, nil
		}
		return document.OutcomeInserted, fmt.Errorf("create document: %w", err)
	}
	return document.OutcomeInserted, nil
}

// FindByID returns the document with the given document_id.
func (s *DocumentStore) FindByID(ctx context.Context, documentID string) (document.Document, error) {
	var entity DocumentEntity
	err := s.db.Session(ctx).Where("document_id = ?", documentID).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return document.Document{}, fmt.Errorf("%w: document %s", document.ErrNotFound, documentID)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("find document: %w", err)
	}
	return documentFromEntity(entity), nil
}

// FindNeedingEmbedding returns up to limit documents flagged for
// embedding, oldest first. Rows with empty content never qualify.
func (s *DocumentStore) FindNeedingEmbedding(ctx context.Context, limit int) ([]document.Document, error) {
	var entities []DocumentEntity
	err := s.db.Session(ctx).
		Where("needs_embedding = ? AND content <> ''", true).
		Order("created_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("find pending documents: %w", err)
	}

	docs := make([]document.Document, len(entities))
	for i, entity := range entities {
		docs[i] = documentFromEntity(entity)
	}
	return docs, nil
}

// CountNeedingEmbedding returns the pending backlog size.
func (s *DocumentStore) CountNeedingEmbedding(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.Session(ctx).Model(&DocumentEntity{}).
		Where("needs_embedding = ? AND content <> ''", true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count pending documents: %w", err)
	}
	return count, nil
}

// BatchUpdateEmbeddings applies a chunk of vectors in one transaction.
// Any failed update rolls back the whole chunk.
func (s *DocumentStore) BatchUpdateEmbeddings(ctx context.Context, updates []document.EmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	for _, update := range updates {
		if len(update.Vector()) != s.dimensions {
			return fmt.Errorf("%w: document %s: got %d, want %d",
				document.ErrDimensionMismatch, update.DocumentID(), len(update.Vector()), s.dimensions)
		}
	}

	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		for _, update := range updates {
			generatedAt := update.GeneratedAt()
			res := tx.Model(&DocumentEntity{}).
				Where("document_id = ?", update.DocumentID()).
				Updates(map[string]any{
					"embedding":              database.NewVector(update.Vector()),
					"needs_embedding":        false,
					"embedding_model":        update.Model(),
					"embedding_tokens":       update.Tokens(),
					"embedding_generated_at": &generatedAt,
				})
			if res.Error != nil {
				return fmt.Errorf("update embedding for %s: %w", update.DocumentID(), res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: document %s", document.ErrNotFound, update.DocumentID())
			}
		}
		return nil
	})
}

// MarkForReembedding flags the given documents, or every document with
// content when ids is empty, and returns the affected count.
func (s *DocumentStore) MarkForReembedding(ctx context.Context, ids ...string) (int64, error) {
	query := s.db.Session(ctx).Model(&DocumentEntity{}).Where("content <> ''")
	if len(ids) > 0 {
		query = query.Where("document_id IN ?", ids)
	}
	res := query.Update("needs_embedding", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark for reembedding: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Search returns documents ordered by cosine similarity to the query
// vector, subject to options.
func (s *DocumentStore) Search(ctx context.Context, vector []float32, opts document.SearchOptions) ([]document.Match, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", document.ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if s.db.IsPostgres() {
		return s.searchPostgres(ctx, vector, nil, opts)
	}
	return s.searchInProcess(ctx, vector, nil, opts)
}

// HybridSearch orders by similarity plus keyword boost. The boost is
// document.HybridKeywordBoost when any keyword substring-matches the
// content, title or author.
func (s *DocumentStore) HybridSearch(ctx context.Context, vector []float32, keywords []string, opts document.SearchOptions) ([]document.Match, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", document.ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if len(keywords) == 0 {
		return s.Search(ctx, vector, opts)
	}
	if s.db.IsPostgres() {
		return s.searchPostgres(ctx, vector, keywords, opts)
	}
	return s.searchInProcess(ctx, vector, keywords, opts)
}

// FindSimilar returns the k nearest documents to a stored document,
// excluding the seed itself.
func (s *DocumentStore) FindSimilar(ctx context.Context, documentID string, k int) ([]document.Match, error) {
	seed, err := s.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !seed.HasEmbedding() {
		return nil, fmt.Errorf("%w: document %s has no embedding", document.ErrValidation, documentID)
	}

	opts := document.NewSearchOptions(k+1, 0, document.NewFilters(document.FilterUser(seed.UserID())))
	matches, err := s.Search(ctx, seed.Embedding(), opts)
	if err != nil {
		return nil, err
	}

	out := make([]document.Match, 0, k)
	for _, m := range matches {
		if m.Document().DocumentID() == documentID {
			continue
		}
		out = append(out, m)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Stats summarizes embedding coverage.
func (s *DocumentStore) Stats(ctx context.Context) (document.EmbeddingStats, error) {
	stats := document.EmbeddingStats{BySource: map[document.Source]int64{}}
	session := s.db.Session(ctx)

	if err := session.Model(&DocumentEntity{}).Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("count documents: %w", err)
	}
	err := session.Model(&DocumentEntity{}).
		Where("needs_embedding = ? AND embedding IS NOT NULL", false).
		Count(&stats.Embedded).Error
	if err != nil {
		return stats, fmt.Errorf("count embedded documents: %w", err)
	}
	err = session.Model(&DocumentEntity{}).
		Where("needs_embedding = ? AND content <> ''", true).
		Count(&stats.Pending).Error
	if err != nil {
		return stats, fmt.Errorf("count pending documents: %w", err)
	}

	var bySource []struct {
		Source string
		Count  int64
	}
	err = session.Model(&DocumentEntity{}).
		Select("source, COUNT(*) AS count").
		Group("source").
		Scan(&bySource).Error
	if err != nil {
		return stats, fmt.Errorf("count documents by source: %w", err)
	}
	for _, row := range bySource {
		stats.BySource[document.Source(row.Source)] = row.Count
	}

	var latest []DocumentEntity
	err = session.Model(&DocumentEntity{}).
		Where("embedding_generated_at IS NOT NULL").
		Order("embedding_generated_at DESC").
		Limit(1).
		Find(&latest).Error
	if err != nil {
		return stats, fmt.Errorf("last embedding batch: %w", err)
	}
	if len(latest) > 0 && latest[0].EmbeddingGeneratedAt != nil {
		stats.LastBatch = *latest[0].EmbeddingGeneratedAt
	}

	return stats, nil
}

// searchRow carries a document row together with its computed scores.
type searchRow struct {
	DocumentEntity
	Similarity   float64
	KeywordBoost float64
}

// searchPostgres runs a parameterized pgvector query. Similarity is
// 1 - cosine distance and every user-influenced value traverses a
// placeholder.
func (s *DocumentStore) searchPostgres(ctx context.Context, vector []float32, keywords []string, opts document.SearchOptions) ([]document.Match, error) {
	vec := database.NewVector(vector).String()

	inner := strings.Builder{}
	args := []any{}

	inner.WriteString("SELECT documents.*, 1 - (embedding <=> ?::vector) AS similarity")
	args = append(args, vec)

	if len(keywords) > 0 {
		preds := make([]string, 0, len(keywords))
		for _, kw := range keywords {
			pattern := "%" + escapeLike(kw) + "%"
			preds = append(preds, "(content ILIKE ? OR title ILIKE ? OR author ILIKE ?)")
			args = append(args, pattern, pattern, pattern)
		}
		inner.WriteString(", CASE WHEN " + strings.Join(preds, " OR ") + " THEN ? ELSE 0 END AS keyword_boost")
		args = append(args, document.HybridKeywordBoost)
	} else {
		inner.WriteString(", 0 AS keyword_boost")
	}

	inner.WriteString(" FROM documents WHERE embedding IS NOT NULL")
	preds, filterArgs := filterPredicates(opts.Filters())
	for _, pred := range preds {
		inner.WriteString(" AND " + pred)
	}
	args = append(args, filterArgs...)

	sql := "SELECT * FROM (" + inner.String() + ") m WHERE m.similarity >= ?" +
		" ORDER BY m.similarity + m.keyword_boost DESC LIMIT ?"
	args = append(args, opts.MinSimilarity(), opts.Limit())

	var rows []searchRow
	if err := s.db.Session(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	matches := make([]document.Match, len(rows))
	for i, row := range rows {
		matches[i] = document.NewMatch(documentFromEntity(row.DocumentEntity), row.Similarity, row.KeywordBoost)
	}
	return matches, nil
}

// searchInProcess loads filtered candidates and scores them in Go. This
// is the SQLite path; it trades memory for the absence of a native
// vector type.
func (s *DocumentStore) searchInProcess(ctx context.Context, vector []float32, keywords []string, opts document.SearchOptions) ([]document.Match, error) {
	query := s.db.Session(ctx).Where("embedding IS NOT NULL AND embedding <> ''")
	query = applyFilters(query, opts.Filters())

	var entities []DocumentEntity
	if err := query.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("load search candidates: %w", err)
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	matches := make([]document.Match, 0, len(entities))
	for _, entity := range entities {
		similarity := cosineSimilarity(vector, entity.Embedding.Floats())
		if similarity < opts.MinSimilarity() {
			continue
		}

		boost := 0.0
		if len(lowered) > 0 && keywordHit(entity, lowered) {
			boost = document.HybridKeywordBoost
		}
		matches = append(matches, document.NewMatch(documentFromEntity(entity), similarity, boost))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CombinedScore() > matches[j].CombinedScore()
	})
	if len(matches) > opts.Limit() {
		matches = matches[:opts.Limit()]
	}
	return matches, nil
}

func keywordHit(entity DocumentEntity, lowered []string) bool {
	content := strings.ToLower(entity.Content)
	title := strings.ToLower(entity.Title)
	author := strings.ToLower(entity.Author)
	for _, kw := range lowered {
		if strings.Contains(content, kw) || strings.Contains(title, kw) || strings.Contains(author, kw) {
			return true
		}
	}
	return false
}

// filterPredicates renders Filters as parameterized SQL predicates for
// the PostgreSQL raw query.
func filterPredicates(f document.Filters) ([]string, []any) {
	var preds []string
	var args []any

	if f.UserID() != "" {
		preds = append(preds, "user_id = ?")
		args = append(args, f.UserID())
	}
	if f.Source() != "" {
		preds = append(preds, "source = ?")
		args = append(args, string(f.Source()))
	}
	if f.Type() != "" {
		preds = append(preds, "type = ?")
		args = append(args, string(f.Type()))
	}
	if f.Author() != "" {
		preds = append(preds, "author ILIKE ?")
		args = append(args, "%"+escapeLike(f.Author())+"%")
	}
	if !f.TimeStart().IsZero() {
		preds = append(preds, "timestamp >= ?")
		args = append(args, f.TimeStart())
	}
	if !f.TimeEnd().IsZero() {
		preds = append(preds, "timestamp <= ?")
		args = append(args, f.TimeEnd())
	}
	return preds, args
}

// applyFilters applies Filters to a GORM query for the SQLite path.
func applyFilters(query *gorm.DB, f document.Filters) *gorm.DB {
	if f.UserID() != "" {
		query = query.Where("user_id = ?", f.UserID())
	}
	if f.Source() != "" {
		query = query.Where("source = ?", string(f.Source()))
	}
	if f.Type() != "" {
		query = query.Where("type = ?", string(f.Type()))
	}
	if f.Author() != "" {
		// SQLite honors the backslash escapes only with an explicit
		// ESCAPE clause.
		query = query.Where(`LOWER(author) LIKE ? ESCAPE '\'`, "%"+strings.ToLower(escapeLike(f.Author()))+"%")
	}
	if !f.TimeStart().IsZero() {
		query = query.Where("timestamp >= ?", f.TimeStart())
	}
	if !f.TimeEnd().IsZero() {
		query = query.Where("timestamp <= ?", f.TimeEnd())
	}
	return query
}

// escapeLike neutralizes LIKE wildcards in user-supplied text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// Interface check.
var _ document.Store = (*DocumentStore)(nil)
