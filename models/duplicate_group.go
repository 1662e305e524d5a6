package models

import "time"

const (
	DuplicateGroupTypeExact   = "exact"
	DuplicateGroupTypeSimilar = "similar"

	DuplicateGroupStatusPending  = "pending"
	DuplicateGroupStatusResolved = "resolved"
)

// Resolution actions accepted by resolveGroup.
const (
	ResolveActionKeepOne = "keep_one"
	ResolveActionKeepAll = "keep_all"
)

// DuplicateGroup is a set of vault assets judged duplicates of one another,
// produced by a completed scan. Groups persist until resolved.
type DuplicateGroup struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	OwnerID    int        `json:"owner_id" gorm:"column:owner_id;index;not null"`
	ScanJobID  string     `json:"scan_job_id" gorm:"column:scan_job_id;type:varchar(36);not null"`
	GroupType  string     `json:"group_type" gorm:"column:group_type;type:varchar(16);not null"`
	Status     string     `json:"status" gorm:"column:status;type:varchar(16);not null"`
	AssetCount int        `json:"asset_count" gorm:"column:asset_count;not null;default:0"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" gorm:"column:resolved_at"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	Members []DuplicateGroupMember `json:"members,omitempty" gorm:"foreignKey:GroupID"`
}

func (DuplicateGroup) TableName() string { return "duplicate_groups" }

// DuplicateGroupMember links one asset into a group. Exactly one member per
// group carries is_primary, chosen by highest resolution then earliest
// capture date.
type DuplicateGroupMember struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	GroupID   uint      `json:"group_id" gorm:"column:group_id;index;not null"`
	AssetID   string    `json:"asset_id" gorm:"column:asset_id;type:varchar(36);not null"`
	IsPrimary bool      `json:"is_primary" gorm:"column:is_primary;not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (DuplicateGroupMember) TableName() string { return "duplicate_group_members" }
