package services

import (
	"errors"
	"os"
	"strconv"

	"photo-vault-api/config"
	"photo-vault-api/models"

	"gorm.io/gorm"
)

// PlanInfo is the quota snapshot returned to callers. RemainingPhotos is -1
// on unlimited plans.
type PlanInfo struct {
	PlanKey         string `json:"plan_key"`
	CurrentPhotos   int64  `json:"current_photos"`
	MaxPhotos       int64  `json:"max_photos"`
	RemainingPhotos int64  `json:"remaining_photos"`
}

// PlanGuardService enforces the per-account asset quota. The import engine
// consults it before every transfer; tripping it parks the job in
// blocked_limit instead of failing it.
type PlanGuardService struct {
	db *gorm.DB
}

func NewPlanGuardService(db *gorm.DB) *PlanGuardService {
	if db == nil {
		db = config.DB
	}
	return &PlanGuardService{db: db}
}

func (s *PlanGuardService) PlanInfo(ownerID int) (*PlanInfo, error) {
	maxPhotos, planKey, err := s.limitFor(ownerID)
	if err != nil {
		return nil, err
	}

	var current int64
	if err := s.db.Model(&models.Asset{}).
		Where("owner_id = ? AND deleted_at IS NULL", ownerID).
		Count(&current).Error; err != nil {
		return nil, err
	}

	info := &PlanInfo{PlanKey: planKey, CurrentPhotos: current, MaxPhotos: maxPhotos}
	if maxPhotos <= 0 {
		info.RemainingPhotos = -1
	} else if current >= maxPhotos {
		info.RemainingPhotos = 0
	} else {
		info.RemainingPhotos = maxPhotos - current
	}
	return info, nil
}

// Allow returns ErrQuotaExceeded once the account is at capacity.
func (s *PlanGuardService) Allow(ownerID int) error {
	info, err := s.PlanInfo(ownerID)
	if err != nil {
		return err
	}
	if info.RemainingPhotos == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *PlanGuardService) limitFor(ownerID int) (int64, string, error) {
	var plan models.AccountPlan
	err := s.db.Where("owner_id = ?", ownerID).First(&plan).Error
	if err == nil {
		return plan.MaxPhotos, plan.PlanKey, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", err
	}

	// No provisioned plan: fall back to the deployment default.
	if v := os.Getenv("DEFAULT_MAX_PHOTOS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n, "default", nil
		}
	}
	return 0, "default", nil
}
