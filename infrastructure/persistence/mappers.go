package persistence

import (
	"encoding/json"
	"time"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/internal/database"
)

func documentToEntity(doc document.Document) DocumentEntity {
	metadata := ""
	if doc.Metadata() != nil {
		if raw, err := json.Marshal(doc.Metadata()); err == nil {
			metadata = string(raw)
		}
	}

	entity := DocumentEntity{
		DocumentID:      doc.DocumentID(),
		UserID:          doc.UserID(),
		Source:          string(doc.Source()),
		Type:            string(doc.Type()),
		Content:         doc.Content(),
		Title:           doc.Title(),
		Author:          doc.Author(),
		Timestamp:       doc.Timestamp(),
		Metadata:        metadata,
		NeedsEmbedding:  doc.NeedsEmbedding(),
		EmbeddingModel:  doc.EmbeddingModel(),
		EmbeddingTokens: doc.EmbeddingTokens(),
	}
	if doc.HasEmbedding() {
		entity.Embedding = database.NewVector(doc.Embedding())
	}
	if !doc.EmbeddingGeneratedAt().IsZero() {
		t := doc.EmbeddingGeneratedAt()
		entity.EmbeddingGeneratedAt = &t
	}
	return entity
}

func documentFromEntity(entity DocumentEntity) document.Document {
	var metadata document.Metadata
	if entity.Metadata != "" {
		_ = json.Unmarshal([]byte(entity.Metadata), &metadata)
	}

	var generatedAt time.Time
	if entity.EmbeddingGeneratedAt != nil {
		generatedAt = *entity.EmbeddingGeneratedAt
	}

	return document.Hydrate(document.HydrateParams{
		DocumentID:           entity.DocumentID,
		UserID:               entity.UserID,
		Source:               document.Source(entity.Source),
		Type:                 document.Type(entity.Type),
		Content:              entity.Content,
		Title:                entity.Title,
		Author:               entity.Author,
		Timestamp:            entity.Timestamp,
		Metadata:             metadata,
		Embedding:            entity.Embedding.Floats(),
		NeedsEmbedding:       entity.NeedsEmbedding,
		EmbeddingModel:       entity.EmbeddingModel,
		EmbeddingTokens:      entity.EmbeddingTokens,
		EmbeddingGeneratedAt: generatedAt,
		CreatedAt:            entity.CreatedAt,
		UpdatedAt:            entity.UpdatedAt,
	})
}

func syncLogToEntity(log document.SyncLog) SyncLogEntity {
	entity := SyncLogEntity{
		ID:               log.ID(),
		UserID:           log.UserID(),
		Source:           string(log.Source()),
		Status:           string(log.Status()),
		StartedAt:        log.StartedAt(),
		DocumentsFetched: log.DocumentsFetched(),
		DocumentsStored:  log.DocumentsStored(),
		ErrorMessage:     log.ErrorMessage(),
	}
	if !log.CompletedAt().IsZero() {
		t := log.CompletedAt()
		entity.CompletedAt = &t
	}
	if !log.LastSyncTimestamp().IsZero() {
		t := log.LastSyncTimestamp()
		entity.LastSyncTimestamp = &t
	}
	return entity
}

func syncLogFromEntity(entity SyncLogEntity) document.SyncLog {
	var completedAt, lastSync time.Time
	if entity.CompletedAt != nil {
		completedAt = *entity.CompletedAt
	}
	if entity.LastSyncTimestamp != nil {
		lastSync = *entity.LastSyncTimestamp
	}

	return document.HydrateSyncLog(
		entity.ID,
		entity.UserID,
		document.Source(entity.Source),
		document.SyncStatus(entity.Status),
		entity.StartedAt,
		completedAt,
		entity.DocumentsFetched,
		entity.DocumentsStored,
		lastSync,
		entity.ErrorMessage,
	)
}

func costToEntity(cost document.EmbeddingCost) EmbeddingCostEntity {
	return EmbeddingCostEntity{
		BatchID:       cost.BatchID(),
		Model:         cost.Model(),
		DocumentCount: cost.DocumentCount(),
		TotalTokens:   cost.TotalTokens(),
		EstimatedCost: cost.EstimatedCost(),
		Status:        string(cost.Status()),
		CreatedAt:     cost.CreatedAt(),
	}
}

func costFromEntity(entity EmbeddingCostEntity) document.EmbeddingCost {
	return document.NewEmbeddingCost(
		entity.BatchID,
		entity.Model,
		entity.DocumentCount,
		entity.TotalTokens,
		entity.EstimatedCost,
		document.CostStatus(entity.Status),
	)
}

func turnToEntity(turn document.Turn) TurnEntity {
	metadata := ""
	if turn.Metadata() != nil {
		if raw, err := json.Marshal(turn.Metadata()); err == nil {
			metadata = string(raw)
		}
	}
	return TurnEntity{
		ConversationID: turn.ConversationID(),
		UserID:         turn.UserID(),
		Query:          turn.Query(),
		Answer:         turn.Answer(),
		Metadata:       metadata,
		CreatedAt:      turn.CreatedAt(),
	}
}

func turnFromEntity(entity TurnEntity) document.Turn {
	var metadata document.Metadata
	if entity.Metadata != "" {
		_ = json.Unmarshal([]byte(entity.Metadata), &metadata)
	}
	return document.HydrateTurn(
		entity.ConversationID,
		entity.UserID,
		entity.Query,
		entity.Answer,
		metadata,
		entity.CreatedAt,
	)
}
