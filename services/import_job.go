package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"photo-vault-api/config"
	"photo-vault-api/models"
	"photo-vault-api/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultLeaseDuration = 60 * time.Second

// ImportJobInput is the caller's request to start an import run.
type ImportJobInput struct {
	SourceID          uint     `json:"source_id" binding:"required"`
	Scope             string   `json:"scope" binding:"required"`
	SelectedAlbumIDs  []string `json:"selected_album_ids"`
	SkipDeduplication bool     `json:"skip_deduplication"`
}

// ImportJobService owns the import state machine. Every job runs on its own
// worker goroutine which is the only writer of the job's progress while it
// holds the lease; callers poll Status.
type ImportJobService struct {
	db        *gorm.DB
	connector *SourceConnectorService
	guard     *PlanGuardService
	oracle    SimilarityOracle
	threshold float64

	storageRoot   string
	leaseDuration time.Duration
}

func NewImportJobService(db *gorm.DB, connector *SourceConnectorService) *ImportJobService {
	if db == nil {
		db = config.DB
	}
	if connector == nil {
		connector = NewSourceConnectorService(db, nil)
	}
	root := os.Getenv("VAULT_STORAGE_PATH")
	if root == "" {
		root = "./vault-data"
	}
	return &ImportJobService{
		db:            db,
		connector:     connector,
		guard:         NewPlanGuardService(db),
		oracle:        HammingOracle{},
		threshold:     similarityThreshold(),
		storageRoot:   root,
		leaseDuration: defaultLeaseDuration,
	}
}

// Start validates the request and atomically creates the job: the insert
// itself carries the one-active-job-per-owner check, so two racing calls can
// never both succeed. The worker goroutine is spawned on success.
func (s *ImportJobService) Start(ctx context.Context, ownerID int, input *ImportJobInput) (*models.ImportJob, error) {
	if input == nil {
		return nil, errors.New("input is nil")
	}
	if input.Scope != models.ImportScopeFull && input.Scope != models.ImportScopeSelectedAlbums {
		return nil, fmt.Errorf("invalid scope %q", input.Scope)
	}
	if input.Scope == models.ImportScopeSelectedAlbums && len(input.SelectedAlbumIDs) == 0 {
		return nil, errors.New("selected_album_ids is required for scope selected_albums")
	}

	source, err := s.connector.activeSource(ownerID, input.SourceID)
	if err != nil {
		return nil, err
	}

	var selected *string
	if len(input.SelectedAlbumIDs) > 0 {
		b, err := json.Marshal(input.SelectedAlbumIDs)
		if err != nil {
			return nil, err
		}
		js := string(b)
		selected = &js
	}

	jobID := uuid.NewString()
	now := time.Now()

	// Atomic check-and-create: the NOT EXISTS guard and the insert are one
	// statement, so no read-then-write window exists.
	res := s.db.Exec(`
		INSERT INTO import_jobs
			(id, owner_id, source_id, status, scope, selected_album_ids, skip_deduplication,
			 total_assets, processed_assets, imported_assets, skipped_duplicates, skipped_similar,
			 failed_assets, cancel_requested, pause_requested, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0, 0, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM import_jobs
			WHERE owner_id = ? AND status IN (?)
		)`,
		jobID, ownerID, source.ID, models.ImportJobStatusPending, input.Scope, selected,
		input.SkipDeduplication, false, false, now, now,
		ownerID, models.ImportJobActiveStatuses,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrActiveJobExists
	}

	job, err := s.Status(ownerID, jobID)
	if err != nil {
		return nil, err
	}

	go s.runWorker(jobID)
	return job, nil
}

func (s *ImportJobService) Status(ownerID int, jobID string) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := s.db.Where("id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return &job, nil
}

// Cancel requests cancellation. It is advisory: a running worker honors it
// at the next per-asset checkpoint; parked jobs flip immediately. Assets
// already transferred stay in the vault.
func (s *ImportJobService) Cancel(ownerID int, jobID string) (*models.ImportJob, error) {
	job, err := s.Status(ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, ErrStateConflict
	}

	if job.Status == models.ImportJobStatusPaused || job.Status == models.ImportJobStatusBlockedLimit {
		// No worker to observe the flag; transition directly.
		res := s.db.Model(&models.ImportJob{}).
			Where("id = ? AND status IN (?, ?)", jobID, models.ImportJobStatusPaused, models.ImportJobStatusBlockedLimit).
			Update("status", models.ImportJobStatusCancelled)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrStateConflict
		}
		return s.Status(ownerID, jobID)
	}

	if err := s.db.Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Update("cancel_requested", true).Error; err != nil {
		return nil, err
	}
	return s.Status(ownerID, jobID)
}

// Pause requests a voluntary suspension; progress counters are preserved and
// the worker parks the job at the next checkpoint.
func (s *ImportJobService) Pause(ownerID int, jobID string) (*models.ImportJob, error) {
	job, err := s.Status(ownerID, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case models.ImportJobStatusPending, models.ImportJobStatusEstimating,
		models.ImportJobStatusReady, models.ImportJobStatusImporting:
	default:
		return nil, ErrStateConflict
	}
	if err := s.db.Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Update("pause_requested", true).Error; err != nil {
		return nil, err
	}
	return s.Status(ownerID, jobID)
}

// Resume moves a blocked_limit or paused job back into importing and starts
// a fresh worker. blocked_limit jobs only make progress again once capacity
// freed up; the guard is re-checked per asset either way.
func (s *ImportJobService) Resume(ownerID int, jobID string) (*models.ImportJob, error) {
	if _, err := s.Status(ownerID, jobID); err != nil {
		return nil, err
	}
	res := s.db.Model(&models.ImportJob{}).
		Where("id = ? AND status IN (?, ?)", jobID, models.ImportJobStatusBlockedLimit, models.ImportJobStatusPaused).
		Updates(map[string]interface{}{
			"status":           models.ImportJobStatusImporting,
			"pause_requested":  false,
			"cancel_requested": false,
			"error_code":       nil,
			"error_message":    nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrStateConflict
	}

	go s.runWorker(jobID)
	return s.Status(ownerID, jobID)
}

// ReclaimAbandoned restarts workers for running-state jobs whose lease has
// lapsed, typically after a process crash. Safe to call at any time: the
// lease claim inside the worker keeps double-processing out.
func (s *ImportJobService) ReclaimAbandoned() error {
	now := time.Now()
	var jobs []models.ImportJob
	err := s.db.Where("status IN (?, ?, ?, ?)",
		models.ImportJobStatusPending, models.ImportJobStatusEstimating,
		models.ImportJobStatusReady, models.ImportJobStatusImporting).
		Where("worker_id IS NULL OR lease_expires_at < ?", now).
		Find(&jobs).Error
	if err != nil {
		return err
	}
	for _, job := range jobs {
		log.Printf("reclaiming abandoned import job %s (status %s)", job.ID, job.Status)
		go s.runWorker(job.ID)
	}
	return nil
}

// --- worker ---

func (s *ImportJobService) runWorker(jobID string) {
	workerID := "worker-" + uuid.NewString()[:8]
	if !s.claimLease(jobID, workerID) {
		return
	}
	defer s.releaseLease(jobID, workerID)

	ctx := context.Background()

	var raw models.ImportJob
	if err := s.db.Where("id = ?", jobID).First(&raw).Error; err != nil {
		log.Printf("import job %s: load failed: %v", jobID, err)
		return
	}
	job := &raw

	source, err := s.connector.GetOwnedSource(job.OwnerID, job.SourceID)
	if err != nil {
		s.failJob(jobID, models.ErrCodeStateConflict, fmt.Sprintf("source unavailable: %v", err))
		return
	}

	if job.Status == models.ImportJobStatusPending {
		s.setStatus(jobID, models.ImportJobStatusEstimating)
		job.Status = models.ImportJobStatusEstimating
	}

	albumIDs := decodeAlbumIDs(job.SelectedAlbumIDs)
	candidates, err := s.connector.Candidates(ctx, source, job.Scope, albumIDs, jobID)
	if err != nil {
		s.failFromProviderError(jobID, err)
		return
	}

	if job.Status == models.ImportJobStatusEstimating {
		now := time.Now()
		if err := s.db.Model(&models.ImportJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"total_assets": int64(len(candidates)),
				"status":       models.ImportJobStatusReady,
				"started_at":   now,
			}).Error; err != nil {
			log.Printf("import job %s: estimate persist failed: %v", jobID, err)
			return
		}
		s.setStatus(jobID, models.ImportJobStatusImporting)
	} else if job.Status == models.ImportJobStatusReady {
		s.setStatus(jobID, models.ImportJobStatusImporting)
	}

	for _, candidate := range candidates {
		fresh, ok := s.checkpoint(jobID, workerID)
		if !ok {
			return
		}

		outcome, err := s.processCandidate(ctx, fresh, source, candidate)
		if err != nil {
			s.failFromProviderError(jobID, err)
			return
		}
		switch outcome {
		case candidateBlocked:
			// Lease is cleared in the same update so an immediate resume can
			// claim the job without waiting for the deferred release.
			s.db.Model(&models.ImportJob{}).Where("id = ?", jobID).
				Updates(map[string]interface{}{
					"status":           models.ImportJobStatusBlockedLimit,
					"error_code":       models.ErrCodeQuotaExceeded,
					"error_message":    "account photo limit reached; free capacity and resume",
					"worker_id":        nil,
					"lease_expires_at": nil,
				})
			return
		case candidateFailed:
			if s.storageFailuresExceeded(jobID) {
				s.failJob(jobID, models.ErrCodeStorageFailure, "too many per-asset storage failures")
				return
			}
		}
	}

	s.completeJob(jobID, source.ID)
}

type candidateOutcome int

const (
	candidateImported candidateOutcome = iota
	candidateSkippedDuplicate
	candidateSkippedSimilar
	candidateFailed
	candidateBlocked
)

// processCandidate runs the per-asset algorithm: fingerprint, inline dedup,
// plan guard, transfer, atomic counter persist. Provider-level auth or
// exhausted-retry failures propagate as errors and fail the whole job;
// per-asset storage problems only mark the candidate failed.
func (s *ImportJobService) processCandidate(ctx context.Context, job *models.ImportJob, source *models.ImportSource, candidate RemoteAsset) (candidateOutcome, error) {
	data, err := s.connector.FetchAsset(ctx, source, candidate.ID)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrProviderUnavailable) {
			return candidateFailed, err
		}
		log.Printf("import job %s: fetch %s failed: %v", job.ID, candidate.ID, err)
		s.markCandidateFailed(job, source, candidate)
		return candidateFailed, nil
	}

	fingerprint := utils.Fingerprint(data)
	if len(data) == 0 {
		fingerprint = utils.FallbackFingerprint(candidate.ID, candidate.SizeBytes)
	}

	if !job.SkipDeduplication {
		var dupes int64
		if err := s.db.Model(&models.Asset{}).
			Where("owner_id = ? AND fingerprint = ? AND deleted_at IS NULL", job.OwnerID, fingerprint).
			Count(&dupes).Error; err != nil {
			s.markCandidateFailed(job, source, candidate)
			return candidateFailed, nil
		}
		if dupes > 0 {
			if err := s.recordSkip(job, source, candidate, models.SourceAssetSkippedDuplicate); err != nil {
				s.markCandidateFailed(job, source, candidate)
				return candidateFailed, nil
			}
			return candidateSkippedDuplicate, nil
		}

		if candidate.PerceptualHash != "" && s.hasSimilarAsset(job.OwnerID, candidate.PerceptualHash) {
			if err := s.recordSkip(job, source, candidate, models.SourceAssetSkippedSimilar); err != nil {
				s.markCandidateFailed(job, source, candidate)
				return candidateFailed, nil
			}
			return candidateSkippedSimilar, nil
		}
	}

	if err := s.guard.Allow(job.OwnerID); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return candidateBlocked, nil
		}
		s.markCandidateFailed(job, source, candidate)
		return candidateFailed, nil
	}

	filePath, err := s.storeBytes(job.OwnerID, candidate.FileName, data)
	if err != nil {
		log.Printf("import job %s: store %s failed: %v", job.ID, candidate.ID, err)
		s.markCandidateFailed(job, source, candidate)
		return candidateFailed, nil
	}

	assetID := uuid.NewString()
	providerID := candidate.ID
	jobRef := job.ID
	var phash *string
	if candidate.PerceptualHash != "" {
		ph := candidate.PerceptualHash
		phash = &ph
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		asset := models.Asset{
			ID:              assetID,
			OwnerID:         job.OwnerID,
			SourceID:        &source.ID,
			ImportJobID:     &jobRef,
			ProviderAssetID: &providerID,
			FileName:        candidate.FileName,
			FilePath:        filePath,
			MimeType:        candidate.MimeType,
			SizeBytes:       int64(len(data)),
			Width:           candidate.Width,
			Height:          candidate.Height,
			Fingerprint:     fingerprint,
			PerceptualHash:  phash,
		}
		if err := tx.Create(&asset).Error; err != nil {
			return err
		}
		if err := tx.Clauses(sourceAssetUpsert()).Create(&models.SourceAsset{
			SourceID:        source.ID,
			ProviderAssetID: candidate.ID,
			AssetID:         &assetID,
			ImportJobID:     job.ID,
			Outcome:         models.SourceAssetImported,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ImportJob{}).Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"processed_assets": gorm.Expr("processed_assets + 1"),
				"imported_assets":  gorm.Expr("imported_assets + 1"),
			}).Error
	})
	if err != nil {
		log.Printf("import job %s: persist %s failed: %v", job.ID, candidate.ID, err)
		s.markCandidateFailed(job, source, candidate)
		return candidateFailed, nil
	}
	return candidateImported, nil
}

// sourceAssetUpsert lets a ledger write replace a failed row left by an
// earlier job, so a retried candidate lands on its existing (source, remote
// asset) row instead of tripping the unique index.
func sourceAssetUpsert() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "provider_asset_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"asset_id", "import_job_id", "outcome"}),
	}
}

// recordSkip ledgers a skipped candidate and bumps counters in one
// transaction, so processed_assets never moves without its ledger row.
func (s *ImportJobService) recordSkip(job *models.ImportJob, source *models.ImportSource, candidate RemoteAsset, outcome string) error {
	counter := "skipped_duplicates"
	if outcome == models.SourceAssetSkippedSimilar {
		counter = "skipped_similar"
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(sourceAssetUpsert()).Create(&models.SourceAsset{
			SourceID:        source.ID,
			ProviderAssetID: candidate.ID,
			ImportJobID:     job.ID,
			Outcome:         outcome,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ImportJob{}).Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"processed_assets": gorm.Expr("processed_assets + 1"),
				counter:            gorm.Expr(counter + " + 1"),
			}).Error
	})
}

func (s *ImportJobService) hasSimilarAsset(ownerID int, phash string) bool {
	var hashes []string
	if err := s.db.Model(&models.Asset{}).
		Where("owner_id = ? AND deleted_at IS NULL AND perceptual_hash IS NOT NULL", ownerID).
		Pluck("perceptual_hash", &hashes).Error; err != nil {
		return false
	}
	for _, h := range hashes {
		if score, ok := s.oracle.Similarity(phash, h); ok && score >= s.threshold {
			return true
		}
	}
	return false
}

// markCandidateFailed counts a storage failure: the asset is neither
// imported nor a duplicate. The failure is ledgered with this job's id so a
// resumed worker skips it (keeping processed_assets within total_assets)
// while any later job sees it as a candidate again and retries it.
func (s *ImportJobService) markCandidateFailed(job *models.ImportJob, source *models.ImportSource, candidate RemoteAsset) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(sourceAssetUpsert()).Create(&models.SourceAsset{
			SourceID:        source.ID,
			ProviderAssetID: candidate.ID,
			ImportJobID:     job.ID,
			Outcome:         models.SourceAssetFailed,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ImportJob{}).Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"processed_assets": gorm.Expr("processed_assets + 1"),
				"failed_assets":    gorm.Expr("failed_assets + 1"),
			}).Error
	})
	if err != nil {
		log.Printf("import job %s: failure ledger for %s: %v", job.ID, candidate.ID, err)
	}
}

func (s *ImportJobService) storageFailuresExceeded(jobID string) bool {
	var job models.ImportJob
	if err := s.db.Select("failed_assets", "total_assets").Where("id = ?", jobID).First(&job).Error; err != nil {
		return false
	}
	limit := job.TotalAssets / 5
	if limit < 10 {
		limit = 10
	}
	return job.FailedAssets > limit
}

// checkpoint is run between candidates: it honors cancel and pause requests
// and refreshes the lease. Returns the fresh job row and whether the worker
// should continue.
func (s *ImportJobService) checkpoint(jobID, workerID string) (*models.ImportJob, bool) {
	var job models.ImportJob
	if err := s.db.Where("id = ?", jobID).First(&job).Error; err != nil {
		return nil, false
	}
	if job.IsTerminal() {
		return nil, false
	}
	if job.CancelRequested {
		s.db.Model(&models.ImportJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":           models.ImportJobStatusCancelled,
				"cancel_requested": false,
				"worker_id":        nil,
				"lease_expires_at": nil,
			})
		return nil, false
	}
	if job.PauseRequested {
		// Lease cleared here so a resume right after the pause lands can
		// claim the job immediately.
		s.db.Model(&models.ImportJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":           models.ImportJobStatusPaused,
				"pause_requested":  false,
				"worker_id":        nil,
				"lease_expires_at": nil,
			})
		return nil, false
	}
	s.heartbeat(jobID, workerID)
	return &job, true
}

func (s *ImportJobService) completeJob(jobID string, sourceID uint) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var job models.ImportJob
		if err := tx.Where("id = ?", jobID).First(&job).Error; err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Model(&models.ImportJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":        models.ImportJobStatusCompleted,
				"completed_at":  now,
				"error_code":    nil,
				"error_message": nil,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ImportSource{}).Where("id = ?", sourceID).
			Update("total_assets_synced", gorm.Expr("total_assets_synced + ?", job.ImportedAssets)).Error
	})
	if err != nil {
		log.Printf("import job %s: completion persist failed: %v", jobID, err)
		return
	}
	s.sendReceipt(jobID)
}

func (s *ImportJobService) failJob(jobID, code, message string) {
	s.db.Model(&models.ImportJob{}).Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":        models.ImportJobStatusFailed,
			"error_code":    code,
			"error_message": message,
		})
	s.sendReceipt(jobID)
}

func (s *ImportJobService) failFromProviderError(jobID string, err error) {
	code := models.ErrCodeProviderUnavailable
	if errors.Is(err, ErrAuthFailed) {
		code = models.ErrCodeAuthFailed
	}
	s.failJob(jobID, code, err.Error())
}

// sendReceipt mails a short completion summary to the owner. Best effort;
// skipped entirely when SMTP is not configured.
func (s *ImportJobService) sendReceipt(jobID string) {
	if !config.MailConfigured() {
		return
	}
	var job models.ImportJob
	if err := s.db.Where("id = ?", jobID).First(&job).Error; err != nil {
		return
	}
	var user models.User
	if err := s.db.Where("user_id = ?", job.OwnerID).First(&user).Error; err != nil {
		return
	}
	subject := fmt.Sprintf("Photo import %s", job.Status)
	body := fmt.Sprintf(
		"<p>Your import finished with status <b>%s</b>.</p><p>Imported: %d<br>Skipped duplicates: %d<br>Skipped similar: %d<br>Failed: %d</p>",
		job.Status, job.ImportedAssets, job.SkippedDuplicates, job.SkippedSimilar, job.FailedAssets)
	if err := config.SendMail([]string{user.Email}, subject, body); err != nil {
		log.Printf("import job %s: receipt mail failed: %v", jobID, err)
	}
}

func (s *ImportJobService) setStatus(jobID, status string) {
	s.db.Model(&models.ImportJob{}).Where("id = ?", jobID).Update("status", status)
}

// --- lease ---

func (s *ImportJobService) claimLease(jobID, workerID string) bool {
	now := time.Now()
	res := s.db.Model(&models.ImportJob{}).
		Where("id = ? AND status IN (?, ?, ?, ?)", jobID,
			models.ImportJobStatusPending, models.ImportJobStatusEstimating,
			models.ImportJobStatusReady, models.ImportJobStatusImporting).
		Where("worker_id IS NULL OR lease_expires_at < ?", now).
		Updates(map[string]interface{}{
			"worker_id":        workerID,
			"lease_expires_at": now.Add(s.leaseDuration),
		})
	return res.Error == nil && res.RowsAffected > 0
}

func (s *ImportJobService) heartbeat(jobID, workerID string) {
	s.db.Model(&models.ImportJob{}).
		Where("id = ? AND worker_id = ?", jobID, workerID).
		Update("lease_expires_at", time.Now().Add(s.leaseDuration))
}

func (s *ImportJobService) releaseLease(jobID, workerID string) {
	s.db.Model(&models.ImportJob{}).
		Where("id = ? AND worker_id = ?", jobID, workerID).
		Updates(map[string]interface{}{
			"worker_id":        nil,
			"lease_expires_at": nil,
		})
}

func (s *ImportJobService) storeBytes(ownerID int, fileName string, data []byte) (string, error) {
	dir := filepath.Join(s.storageRoot, fmt.Sprintf("owner_%d", ownerID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + filepath.Ext(fileName)
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	rel := filepath.Join(fmt.Sprintf("owner_%d", ownerID), name)
	return rel, nil
}

func decodeAlbumIDs(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(*raw), &ids); err != nil {
		return nil
	}
	return ids
}
