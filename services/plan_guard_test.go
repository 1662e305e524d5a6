package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"photo-vault-api/models"
)

func TestPlanGuardUnlimitedByDefault(t *testing.T) {
	db := newTestDB(t)
	guard := NewPlanGuardService(db)

	info, err := guard.PlanInfo(1)
	if err != nil {
		t.Fatalf("plan info: %v", err)
	}
	if info.RemainingPhotos != -1 || info.PlanKey != "default" {
		t.Fatalf("default plan = %+v, want unlimited", info)
	}
	if err := guard.Allow(1); err != nil {
		t.Fatalf("allow on unlimited plan: %v", err)
	}
}

func TestPlanGuardCountsOnlyLiveAssets(t *testing.T) {
	db := newTestDB(t)
	guard := NewPlanGuardService(db)
	db.Create(&models.AccountPlan{OwnerID: 1, PlanKey: "basic", MaxPhotos: 3})

	for i := 0; i < 3; i++ {
		db.Create(&models.Asset{
			ID: fmt.Sprintf("a-%d", i), OwnerID: 1,
			FileName: "a.jpg", FilePath: "p", Fingerprint: fmt.Sprintf("fp-%d", i),
		})
	}

	if err := guard.Allow(1); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("allow at capacity err = %v, want ErrQuotaExceeded", err)
	}

	// Tombstoning frees capacity.
	now := time.Now()
	db.Model(&models.Asset{}).Where("id = ?", "a-0").Update("deleted_at", now)

	info, err := guard.PlanInfo(1)
	if err != nil {
		t.Fatalf("plan info: %v", err)
	}
	if info.CurrentPhotos != 2 || info.RemainingPhotos != 1 {
		t.Fatalf("after tombstone plan = %+v, want 2 used 1 free", info)
	}
	if err := guard.Allow(1); err != nil {
		t.Fatalf("allow with free capacity: %v", err)
	}
}

func TestPlanGuardEnvDefaultLimit(t *testing.T) {
	db := newTestDB(t)
	guard := NewPlanGuardService(db)
	t.Setenv("DEFAULT_MAX_PHOTOS", "2")

	info, err := guard.PlanInfo(7)
	if err != nil {
		t.Fatalf("plan info: %v", err)
	}
	if info.MaxPhotos != 2 || info.RemainingPhotos != 2 {
		t.Fatalf("env default plan = %+v, want max 2", info)
	}

	// A provisioned plan row wins over the env default.
	db.Create(&models.AccountPlan{OwnerID: 7, PlanKey: "pro", MaxPhotos: 100})
	info, _ = guard.PlanInfo(7)
	if info.MaxPhotos != 100 || info.PlanKey != "pro" {
		t.Fatalf("provisioned plan = %+v, want pro/100", info)
	}
}
