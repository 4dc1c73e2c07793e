package document

import "time"

// SyncStatus is the lifecycle state of an ingestion run.
type SyncStatus string

// SyncStatus values. A log is immutable once it reaches a terminal
// status (success or failed).
const (
	SyncInProgress SyncStatus = "in_progress"
	SyncSuccess    SyncStatus = "success"
	SyncFailed     SyncStatus = "failed"
)

// Terminal reports whether the status is final.
func (s SyncStatus) Terminal() bool {
	return s == SyncSuccess || s == SyncFailed
}

// SyncLog records one ingestion run for a (user, source).
type SyncLog struct {
	id                string
	userID            string
	source            Source
	status            SyncStatus
	startedAt         time.Time
	completedAt       time.Time
	documentsFetched  int
	documentsStored   int
	lastSyncTimestamp time.Time
	errorMessage      string
}

// NewSyncLog creates an in-progress SyncLog.
func NewSyncLog(id, userID string, source Source) SyncLog {
	return SyncLog{
		id:        id,
		userID:    userID,
		source:    source,
		status:    SyncInProgress,
		startedAt: time.Now().UTC(),
	}
}

// HydrateSyncLog reconstructs a SyncLog from persisted state.
func HydrateSyncLog(
	id, userID string,
	source Source,
	status SyncStatus,
	startedAt, completedAt time.Time,
	fetched, stored int,
	lastSync time.Time,
	errorMessage string,
) SyncLog {
	return SyncLog{
		id:                id,
		userID:            userID,
		source:            source,
		status:            status,
		startedAt:         startedAt,
		completedAt:       completedAt,
		documentsFetched:  fetched,
		documentsStored:   stored,
		lastSyncTimestamp: lastSync,
		errorMessage:      errorMessage,
	}
}

// Succeed returns a copy in terminal success state with final counts and
// the resume cursor advanced to now.
func (l SyncLog) Succeed(fetched, stored int) SyncLog {
	now := time.Now().UTC()
	l.status = SyncSuccess
	l.completedAt = now
	l.documentsFetched = fetched
	l.documentsStored = stored
	l.lastSyncTimestamp = now
	return l
}

// Fail returns a copy in terminal failed state carrying the error message.
func (l SyncLog) Fail(message string) SyncLog {
	l.status = SyncFailed
	l.completedAt = time.Now().UTC()
	l.errorMessage = message
	return l
}

// ID returns the sync identifier.
func (l SyncLog) ID() string { return l.id }

// UserID returns the owning principal.
func (l SyncLog) UserID() string { return l.userID }

// Source returns the synced source.
func (l SyncLog) Source() Source { return l.source }

// Status returns the lifecycle state.
func (l SyncLog) Status() SyncStatus { return l.status }

// StartedAt returns when the run started.
func (l SyncLog) StartedAt() time.Time { return l.startedAt }

// CompletedAt returns when the run reached a terminal state.
func (l SyncLog) CompletedAt() time.Time { return l.completedAt }

// DocumentsFetched returns the upstream record count.
func (l SyncLog) DocumentsFetched() int { return l.documentsFetched }

// DocumentsStored returns the newly persisted document count.
func (l SyncLog) DocumentsStored() int { return l.documentsStored }

// LastSyncTimestamp is the resume cursor for the next incremental run.
func (l SyncLog) LastSyncTimestamp() time.Time { return l.lastSyncTimestamp }

// ErrorMessage returns the failure message, if any.
func (l SyncLog) ErrorMessage() string { return l.errorMessage }
