package models

import "time"

const (
	ImportJobStatusPending      = "pending"
	ImportJobStatusEstimating   = "estimating"
	ImportJobStatusReady        = "ready"
	ImportJobStatusImporting    = "importing"
	ImportJobStatusCompleted    = "completed"
	ImportJobStatusFailed       = "failed"
	ImportJobStatusBlockedLimit = "blocked_limit"
	ImportJobStatusPaused       = "paused"
	ImportJobStatusCancelled    = "cancelled"
	ImportJobStatusRolledBack   = "rolled_back"
)

const (
	ImportScopeFull           = "full"
	ImportScopeSelectedAlbums = "selected_albums"
)

// Error codes recorded on jobs and surfaced to pollers. blocked_limit and a
// pre-exhaustion provider_unavailable are retryable; the rest are terminal.
const (
	ErrCodeAuthFailed          = "auth_failed"
	ErrCodeProviderUnavailable = "provider_unavailable"
	ErrCodeQuotaExceeded       = "quota_exceeded"
	ErrCodeStateConflict       = "state_conflict"
	ErrCodeStorageFailure      = "storage_failure"
	ErrCodeServiceUnavailable  = "service_unavailable"
)

// ImportJob is one asynchronous run copying assets from a source into the
// vault. Progress fields are mutated only by the worker holding the lease.
type ImportJob struct {
	ID                string     `json:"id" gorm:"primaryKey;column:id;type:varchar(36)"`
	OwnerID           int        `json:"owner_id" gorm:"column:owner_id;index;not null"`
	SourceID          uint       `json:"source_id" gorm:"column:source_id;not null"`
	Status            string     `json:"status" gorm:"column:status;type:varchar(32);not null"`
	Scope             string     `json:"scope" gorm:"column:scope;type:varchar(32);not null"`
	SelectedAlbumIDs  *string    `json:"selected_album_ids,omitempty" gorm:"column:selected_album_ids;type:text"`
	SkipDeduplication bool       `json:"skip_deduplication" gorm:"column:skip_deduplication;not null;default:false"`
	TotalAssets       int64      `json:"total_assets" gorm:"column:total_assets;not null;default:0"`
	ProcessedAssets   int64      `json:"processed_assets" gorm:"column:processed_assets;not null;default:0"`
	ImportedAssets    int64      `json:"imported_assets" gorm:"column:imported_assets;not null;default:0"`
	SkippedDuplicates int64      `json:"skipped_duplicates" gorm:"column:skipped_duplicates;not null;default:0"`
	SkippedSimilar    int64      `json:"skipped_similar" gorm:"column:skipped_similar;not null;default:0"`
	FailedAssets      int64      `json:"failed_assets" gorm:"column:failed_assets;not null;default:0"`
	CancelRequested   bool       `json:"cancel_requested" gorm:"column:cancel_requested;not null;default:false"`
	PauseRequested    bool       `json:"pause_requested" gorm:"column:pause_requested;not null;default:false"`
	ErrorCode         *string    `json:"error_code,omitempty" gorm:"column:error_code;type:varchar(32)"`
	ErrorMessage      *string    `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	WorkerID          *string    `json:"-" gorm:"column:worker_id;type:varchar(64)"`
	LeaseExpiresAt    *time.Time `json:"-" gorm:"column:lease_expires_at"`
	StartedAt         *time.Time `json:"started_at,omitempty" gorm:"column:started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedAt         time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (ImportJob) TableName() string { return "import_jobs" }

// ImportJobActiveStatuses are the states that count against the
// one-active-job-per-owner invariant.
var ImportJobActiveStatuses = []string{
	ImportJobStatusPending,
	ImportJobStatusEstimating,
	ImportJobStatusReady,
	ImportJobStatusImporting,
	ImportJobStatusBlockedLimit,
	ImportJobStatusPaused,
}

func (j *ImportJob) IsTerminal() bool {
	switch j.Status {
	case ImportJobStatusCompleted, ImportJobStatusFailed, ImportJobStatusCancelled, ImportJobStatusRolledBack:
		return true
	}
	return false
}
