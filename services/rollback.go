package services

import (
	"errors"
	"log"
	"time"

	"photo-vault-api/config"
	"photo-vault-api/models"

	"gorm.io/gorm"
)

// RollbackService undoes a completed import: every asset the job brought in
// that is still live gets tombstoned, in one transaction, and the job moves
// to rolled_back.
type RollbackService struct {
	db *gorm.DB
}

func NewRollbackService(db *gorm.DB) *RollbackService {
	if db == nil {
		db = config.DB
	}
	return &RollbackService{db: db}
}

// Rollback removes the surviving assets of a completed job and returns how
// many were tombstoned. Assets the owner already deleted, including through
// duplicate-group resolution, are simply not counted again. Only completed
// jobs can be rolled back; anything else is a state conflict.
func (s *RollbackService) Rollback(ownerID int, jobID string) (int64, error) {
	var job models.ImportJob
	if err := s.db.Where("id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if job.OwnerID != ownerID {
		return 0, ErrForbidden
	}
	if job.Status != models.ImportJobStatusCompleted {
		return 0, ErrStateConflict
	}

	var removed int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Guard again inside the transaction so two concurrent rollbacks
		// cannot both proceed.
		res := tx.Model(&models.ImportJob{}).
			Where("id = ? AND status = ?", jobID, models.ImportJobStatusCompleted).
			Update("status", models.ImportJobStatusRolledBack)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStateConflict
		}

		now := time.Now()
		del := tx.Model(&models.Asset{}).
			Where("import_job_id = ? AND deleted_at IS NULL", jobID).
			Update("deleted_at", now)
		if del.Error != nil {
			return del.Error
		}
		removed = del.RowsAffected

		return tx.Model(&models.ImportSource{}).
			Where("id = ?", job.SourceID).
			Update("total_assets_synced", gorm.Expr("total_assets_synced - ?", removed)).Error
	})
	if err != nil {
		return 0, err
	}

	log.Printf("rolled back import job %s: %d assets removed", jobID, removed)
	return removed, nil
}
