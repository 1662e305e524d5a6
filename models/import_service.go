package models

import "time"

const (
	AuthKindOAuth   = "oauth"
	AuthKindArchive = "archive"
)

// ImportService is one catalog entry: a provider the deployment can connect
// to, with its capability flags. Rows are seeded from the catalog file at
// startup; requires_app_review entries are visible but not connectable.
type ImportService struct {
	ID                uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ServiceKey        string    `json:"service_key" gorm:"column:service_key;type:varchar(64);uniqueIndex;not null"`
	DisplayName       string    `json:"display_name" gorm:"column:display_name;type:varchar(128);not null"`
	AuthKind          string    `json:"auth_kind" gorm:"column:auth_kind;type:varchar(16);not null"`
	// No column defaults on the flags: gorm omits zero-valued fields that
	// carry a default tag, which would turn a seeded active=false into true.
	RequiresAppReview bool      `json:"requires_app_review" gorm:"column:requires_app_review;not null"`
	IsActive          bool      `json:"is_active" gorm:"column:is_active;not null"`
	CreatedAt         time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (ImportService) TableName() string { return "import_services" }
