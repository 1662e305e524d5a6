package models

import "time"

// Asset is one photo or video held by the vault. Deletion is always a
// tombstone (deleted_at), never a row delete, so duplicate-group resolution
// and rollback stay idempotent with respect to each other.
type Asset struct {
	ID              string     `json:"id" gorm:"primaryKey;column:id;type:varchar(36)"`
	OwnerID         int        `json:"owner_id" gorm:"column:owner_id;index;not null"`
	SourceID        *uint      `json:"source_id,omitempty" gorm:"column:source_id"`
	ImportJobID     *string    `json:"import_job_id,omitempty" gorm:"column:import_job_id;type:varchar(36);index"`
	ProviderAssetID *string    `json:"provider_asset_id,omitempty" gorm:"column:provider_asset_id;type:varchar(255)"`
	FileName        string     `json:"file_name" gorm:"column:file_name;type:varchar(255);not null"`
	FilePath        string     `json:"file_path" gorm:"column:file_path;type:varchar(512);not null"`
	MimeType        string     `json:"mime_type" gorm:"column:mime_type;type:varchar(128)"`
	SizeBytes       int64      `json:"size_bytes" gorm:"column:size_bytes;not null;default:0"`
	Width           int        `json:"width" gorm:"column:width;not null;default:0"`
	Height          int        `json:"height" gorm:"column:height;not null;default:0"`
	TakenAt         *time.Time `json:"taken_at,omitempty" gorm:"column:taken_at"`
	Fingerprint     string     `json:"fingerprint" gorm:"column:fingerprint;type:varchar(64);index;not null"`
	PerceptualHash  *string    `json:"perceptual_hash,omitempty" gorm:"column:perceptual_hash;type:varchar(16)"`
	CreatedAt       time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}

func (Asset) TableName() string { return "assets" }

// SourceAsset outcome values.
const (
	SourceAssetImported         = "imported"
	SourceAssetSkippedDuplicate = "skipped_duplicate"
	SourceAssetSkippedSimilar   = "skipped_similar"
	SourceAssetFailed           = "failed"
)

// SourceAsset is the per-source sync ledger, one row per (source, remote
// asset). A remote asset with a non-failed ledger row is "synced" and never a
// candidate again for that source. Failed rows stay candidates for any job
// other than the one that recorded the failure, so retries happen in a later
// run instead of inflating the failing job's counters on resume.
type SourceAsset struct {
	ID              uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SourceID        uint      `json:"source_id" gorm:"column:source_id;not null;uniqueIndex:uniq_source_provider_asset"`
	ProviderAssetID string    `json:"provider_asset_id" gorm:"column:provider_asset_id;type:varchar(255);not null;uniqueIndex:uniq_source_provider_asset"`
	AssetID         *string   `json:"asset_id,omitempty" gorm:"column:asset_id;type:varchar(36)"`
	ImportJobID     string    `json:"import_job_id" gorm:"column:import_job_id;type:varchar(36);not null"`
	Outcome         string    `json:"outcome" gorm:"column:outcome;type:varchar(32);not null"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (SourceAsset) TableName() string { return "source_assets" }
