package document

import "time"

// HydrateParams carries persisted state back into a Document.
type HydrateParams struct {
	DocumentID           string
	UserID               string
	Source               Source
	Type                 Type
	Content              string
	Title                string
	Author               string
	Timestamp            time.Time
	Metadata             Metadata
	Embedding            []float32
	NeedsEmbedding       bool
	EmbeddingModel       string
	EmbeddingTokens      int
	EmbeddingGeneratedAt time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Hydrate reconstructs a Document from persisted state without applying
// creation-time defaults.
func Hydrate(p HydrateParams) Document {
	var embedding []float32
	if p.Embedding != nil {
		embedding = make([]float32, len(p.Embedding))
		copy(embedding, p.Embedding)
	}

	return Document{
		documentID:           p.DocumentID,
		userID:               p.UserID,
		source:               p.Source,
		docType:              p.Type,
		content:              p.Content,
		title:                p.Title,
		author:               p.Author,
		timestamp:            p.Timestamp,
		metadata:             p.Metadata,
		embedding:            embedding,
		needsEmbedding:       p.NeedsEmbedding,
		embeddingModel:       p.EmbeddingModel,
		embeddingTokens:      p.EmbeddingTokens,
		embeddingGeneratedAt: p.EmbeddingGeneratedAt,
		createdAt:            p.CreatedAt,
		updatedAt:            p.UpdatedAt,
	}
}
