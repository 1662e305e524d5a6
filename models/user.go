package models

import (
	"time"
)

type User struct {
	UserID      int        `gorm:"primaryKey;column:user_id" json:"user_id"`
	Email       string     `gorm:"column:email;unique" json:"email"`
	Password    string     `gorm:"column:password" json:"-"`
	DisplayName string     `gorm:"column:display_name" json:"display_name"`
	CreateAt    *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt    *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt    *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// AccountPlan caps how many live assets an account may hold.
// MaxPhotos of 0 means unlimited.
type AccountPlan struct {
	OwnerID   int        `gorm:"primaryKey;column:owner_id" json:"owner_id"`
	PlanKey   string     `gorm:"column:plan_key;type:varchar(32)" json:"plan_key"`
	MaxPhotos int64      `gorm:"column:max_photos;not null;default:0" json:"max_photos"`
	CreateAt  *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt  *time.Time `gorm:"column:update_at" json:"update_at"`
}

func (AccountPlan) TableName() string {
	return "account_plans"
}
