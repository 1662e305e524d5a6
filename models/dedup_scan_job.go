package models

import "time"

const (
	DedupScanStatusPending   = "pending"
	DedupScanStatusScanning  = "scanning"
	DedupScanStatusCompleted = "completed"
	DedupScanStatusFailed    = "failed"
)

// DedupScanJob is one whole-vault duplicate scan for a single owner. Its
// lifecycle is independent of import jobs: the scan only reads assets and
// writes duplicate groups, so both may run at the same time.
type DedupScanJob struct {
	ID              string     `json:"id" gorm:"primaryKey;column:id;type:varchar(36)"`
	OwnerID         int        `json:"owner_id" gorm:"column:owner_id;index;not null"`
	Status          string     `json:"status" gorm:"column:status;type:varchar(32);not null"`
	TotalAssets     int64      `json:"total_assets" gorm:"column:total_assets;not null;default:0"`
	ScannedAssets   int64      `json:"scanned_assets" gorm:"column:scanned_assets;not null;default:0"`
	DuplicatesFound int64      `json:"duplicates_found" gorm:"column:duplicates_found;not null;default:0"`
	SimilarFound    int64      `json:"similar_found" gorm:"column:similar_found;not null;default:0"`
	ErrorMessage    *string    `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	StartedAt       *time.Time `json:"started_at,omitempty" gorm:"column:started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedAt       time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (DedupScanJob) TableName() string { return "dedup_scan_jobs" }

func (j *DedupScanJob) IsTerminal() bool {
	return j.Status == DedupScanStatusCompleted || j.Status == DedupScanStatusFailed
}
