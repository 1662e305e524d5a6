package models

import "gorm.io/gorm"

// Migrate creates or updates every table this service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&AccountPlan{},
		&ImportService{},
		&ImportSource{},
		&ImportJob{},
		&Asset{},
		&SourceAsset{},
		&DedupScanJob{},
		&DuplicateGroup{},
		&DuplicateGroupMember{},
	)
}
