package services

import (
	"context"
	"errors"
	"testing"

	"photo-vault-api/models"
)

func completedImport(t *testing.T, n int) (*importEnv, *models.ImportJob) {
	t.Helper()
	assets, blobs := fakeAssets(n)
	env := newImportEnv(t, &fakeProvider{assets: assets, blobs: blobs})

	job, err := env.jobs.Start(context.Background(), env.owner.UserID, &ImportJobInput{
		SourceID: env.source.ID, Scope: models.ImportScopeFull,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	done := waitForJobStatus(t, env.jobs, env.owner.UserID, job.ID, models.ImportJobStatusCompleted)
	return env, done
}

func TestRollbackRemovesExactlyTheJobsAssets(t *testing.T) {
	env, job := completedImport(t, 4)
	rollbacks := NewRollbackService(env.db)

	// An asset from elsewhere must survive.
	outsider := models.Asset{
		ID: "outsider", OwnerID: env.owner.UserID,
		FileName: "old.jpg", FilePath: "owner_1/old.jpg", Fingerprint: "outsider-print",
	}
	if err := env.db.Create(&outsider).Error; err != nil {
		t.Fatalf("seed outsider: %v", err)
	}

	removed, err := rollbacks.Rollback(env.owner.UserID, job.ID)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if removed != 4 {
		t.Fatalf("removed = %d, want 4", removed)
	}

	var live []models.Asset
	env.db.Where("owner_id = ? AND deleted_at IS NULL", env.owner.UserID).Find(&live)
	if len(live) != 1 || live[0].ID != "outsider" {
		t.Fatalf("survivors = %d, want only the outsider", len(live))
	}

	after, _ := env.jobs.Status(env.owner.UserID, job.ID)
	if after.Status != models.ImportJobStatusRolledBack {
		t.Fatalf("job status = %q, want rolled_back", after.Status)
	}

	var source models.ImportSource
	env.db.First(&source, env.source.ID)
	if source.TotalAssetsSynced != 0 {
		t.Fatalf("total_assets_synced = %d after rollback, want 0", source.TotalAssetsSynced)
	}
}

func TestRollbackTwiceConflicts(t *testing.T) {
	env, job := completedImport(t, 2)
	rollbacks := NewRollbackService(env.db)

	if _, err := rollbacks.Rollback(env.owner.UserID, job.ID); err != nil {
		t.Fatalf("first rollback: %v", err)
	}
	if _, err := rollbacks.Rollback(env.owner.UserID, job.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("second rollback err = %v, want ErrStateConflict", err)
	}
}

func TestRollbackRequiresCompletedJob(t *testing.T) {
	env, job := completedImport(t, 1)
	rollbacks := NewRollbackService(env.db)

	env.db.Model(&models.ImportJob{}).Where("id = ?", job.ID).
		Update("status", models.ImportJobStatusCancelled)

	if _, err := rollbacks.Rollback(env.owner.UserID, job.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("rollback of cancelled job err = %v, want ErrStateConflict", err)
	}
	if _, err := rollbacks.Rollback(env.owner.UserID, "no-such-job"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rollback of missing job err = %v, want ErrNotFound", err)
	}
	if _, err := rollbacks.Rollback(42, job.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign rollback err = %v, want ErrForbidden", err)
	}
}

func TestRollbackSkipsAssetsAlreadyRemovedByResolution(t *testing.T) {
	env, job := completedImport(t, 3)
	rollbacks := NewRollbackService(env.db)

	// One of the job's assets was already deleted through group resolution.
	var victim models.Asset
	env.db.Where("import_job_id = ?", job.ID).First(&victim)
	env.db.Exec("UPDATE assets SET deleted_at = CURRENT_TIMESTAMP WHERE id = ?", victim.ID)

	removed, err := rollbacks.Rollback(env.owner.UserID, job.ID)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2 (one was already gone)", removed)
	}
}
