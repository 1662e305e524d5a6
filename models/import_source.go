package models

import "time"

// ImportSource is one account's connection to a provider. Credentials hold
// whatever the auth kind requires (token blob or archive path) and never
// leave the server. Disconnecting flips is_active; the row is kept so
// history and the sync ledger stay intact.
type ImportSource struct {
	ID                uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	OwnerID           int       `json:"owner_id" gorm:"column:owner_id;index;not null"`
	ServiceID         uint      `json:"service_id" gorm:"column:service_id;not null"`
	Credentials       string    `json:"-" gorm:"column:credentials;type:text"`
	IsActive          bool      `json:"is_active" gorm:"column:is_active;not null;default:true"`
	TotalAssetsSynced int64     `json:"total_assets_synced" gorm:"column:total_assets_synced;not null;default:0"`
	CreatedAt         time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	Service ImportService `json:"service,omitempty" gorm:"foreignKey:ServiceID"`
}

func (ImportSource) TableName() string { return "import_sources" }
