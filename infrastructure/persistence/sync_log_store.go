package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/internal/database"
)

// SyncLogStore implements document.SyncLogStore on GORM.
type SyncLogStore struct {
	db database.Database
}

// NewSyncLogStore creates a SyncLogStore.
func NewSyncLogStore(db database.Database) *SyncLogStore {
	return &SyncLogStore{db: db}
}

// Create writes a new in-progress log row.
func (s *SyncLogStore) Create(ctx context.Context, log document.SyncLog) error {
	entity := syncLogToEntity(log)
	if err := s.db.Session(ctx).Create(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: sync log %s", document.ErrDuplicate, log.ID())
		}
		return fmt.Errorf("create sync log: %w", err)
	}
	return nil
}

// Update persists a state transition. Terminal rows are immutable: the
// update is conditioned on the row still being in progress.
func (s *SyncLogStore) Update(ctx context.Context, log document.SyncLog) error {
	entity := syncLogToEntity(log)
	res := s.db.Session(ctx).
		Model(&SyncLogEntity{}).
		Where("id = ? AND status = ?", log.ID(), string(document.SyncInProgress)).
		Updates(map[string]any{
			"status":              entity.Status,
			"completed_at":        entity.CompletedAt,
			"documents_fetched":   entity.DocumentsFetched,
			"documents_stored":    entity.DocumentsStored,
			"last_sync_timestamp": entity.LastSyncTimestamp,
			"error_message":       entity.ErrorMessage,
		})
	if res.Error != nil {
		return fmt.Errorf("update sync log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := s.FindByID(ctx, log.ID())
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: sync log %s already %s", document.ErrValidation, log.ID(), existing.Status())
	}
	return nil
}

// FindByID returns the log with the given sync id.
func (s *SyncLogStore) FindByID(ctx context.Context, id string) (document.SyncLog, error) {
	var entity SyncLogEntity
	err := s.db.Session(ctx).Where("id = ?", id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return document.SyncLog{}, fmt.Errorf("%w: sync log %s", document.ErrNotFound, id)
	}
	if err != nil {
		return document.SyncLog{}, fmt.Errorf("find sync log: %w", err)
	}
	return syncLogFromEntity(entity), nil
}

// History returns recent logs, newest first, optionally filtered by user
// and source.
func (s *SyncLogStore) History(ctx context.Context, userID string, source document.Source, limit int) ([]document.SyncLog, error) {
	query := s.db.Session(ctx).Model(&SyncLogEntity{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if source != "" {
		query = query.Where("source = ?", string(source))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entities []SyncLogEntity
	if err := query.Order("started_at DESC").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("sync history: %w", err)
	}

	logs := make([]document.SyncLog, len(entities))
	for i, entity := range entities {
		logs[i] = syncLogFromEntity(entity)
	}
	return logs, nil
}

// LastSuccessful returns the most recent success row for a
// (user, source). Its cursor seeds the next incremental run.
func (s *SyncLogStore) LastSuccessful(ctx context.Context, userID string, source document.Source) (document.SyncLog, error) {
	var entity SyncLogEntity
	err := s.db.Session(ctx).
		Where("user_id = ? AND source = ? AND status = ?", userID, string(source), string(document.SyncSuccess)).
		Order("completed_at DESC").
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return document.SyncLog{}, fmt.Errorf("%w: no successful sync for %s/%s", document.ErrNotFound, userID, source)
	}
	if err != nil {
		return document.SyncLog{}, fmt.Errorf("find last successful sync: %w", err)
	}
	return syncLogFromEntity(entity), nil
}

// Interface check.
var _ document.SyncLogStore = (*SyncLogStore)(nil)
