package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"photo-vault-api/config"
	"photo-vault-api/models"
	"photo-vault-api/utils"

	"gorm.io/gorm"
)

const (
	providerMaxAttempts = 3
	defaultRetryBase    = time.Second
)

// ConnectResult is the outcome of connect(): OAuth-style providers hand back
// a redirect URL to complete out of band, archive providers return the
// created source directly.
type ConnectResult struct {
	AuthURL string               `json:"auth_url,omitempty"`
	Source  *models.ImportSource `json:"source,omitempty"`
}

// SourceConnectorService manages per-account provider connections and is the
// only component that touches provider adapters.
type SourceConnectorService struct {
	db       *gorm.DB
	registry *ServiceRegistry

	// retryBase is the first backoff step; tests shrink it.
	retryBase time.Duration
}

func NewSourceConnectorService(db *gorm.DB, registry *ServiceRegistry) *SourceConnectorService {
	if db == nil {
		db = config.DB
	}
	if registry == nil {
		registry = NewServiceRegistry(db)
	}
	return &SourceConnectorService{db: db, registry: registry, retryBase: defaultRetryBase}
}

// Connect authorizes a new source for the owner. serviceKey must name an
// active catalog entry; archivePath is required for archive-kind services and
// becomes the source credential.
func (s *SourceConnectorService) Connect(ownerID int, serviceKey, archivePath string) (*ConnectResult, error) {
	serviceKey = utils.SanitizeInput(serviceKey)
	svc, err := s.registry.GetActive(serviceKey)
	if err != nil {
		return nil, err
	}

	if svc.AuthKind == models.AuthKindOAuth {
		authURL, err := s.registry.AuthCodeURL(serviceKey)
		if err != nil {
			return nil, err
		}
		return &ConnectResult{AuthURL: authURL}, nil
	}

	if archivePath == "" {
		return nil, fmt.Errorf("archive_path is required for service %s", serviceKey)
	}
	if _, err := os.Stat(archivePath); err != nil {
		return nil, fmt.Errorf("archive not readable: %w", err)
	}

	source := models.ImportSource{
		OwnerID:     ownerID,
		ServiceID:   svc.ID,
		Credentials: archivePath,
		IsActive:    true,
	}
	if err := s.db.Create(&source).Error; err != nil {
		return nil, err
	}
	source.Service = *svc
	return &ConnectResult{Source: &source}, nil
}

// Disconnect marks the source inactive. Already-imported assets are left
// untouched and the row is kept for history.
func (s *SourceConnectorService) Disconnect(ownerID int, sourceID uint) error {
	source, err := s.GetOwnedSource(ownerID, sourceID)
	if err != nil {
		return err
	}
	if !source.IsActive {
		return nil
	}
	return s.db.Model(&models.ImportSource{}).
		Where("id = ?", source.ID).
		Update("is_active", false).Error
}

func (s *SourceConnectorService) ListSources(ownerID int) ([]models.ImportSource, error) {
	var sources []models.ImportSource
	err := s.db.Preload("Service").
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&sources).Error
	return sources, err
}

// GetOwnedSource loads a source and enforces owner scoping: a source owned
// by someone else is a forbidden error, not a not-found.
func (s *SourceConnectorService) GetOwnedSource(ownerID int, sourceID uint) (*models.ImportSource, error) {
	var source models.ImportSource
	if err := s.db.Preload("Service").First(&source, sourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if source.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return &source, nil
}

// ListAlbums enumerates the remote albums of an active source.
func (s *SourceConnectorService) ListAlbums(ctx context.Context, ownerID int, sourceID uint) ([]Album, error) {
	source, err := s.activeSource(ownerID, sourceID)
	if err != nil {
		return nil, err
	}

	var albums []Album
	err = s.withRetry(ctx, source, func(p Provider) error {
		var callErr error
		albums, callErr = p.ListAlbums(ctx, source.Credentials)
		return callErr
	})
	return albums, err
}

// CheckNew counts remote assets not yet marked synced for this source.
func (s *SourceConnectorService) CheckNew(ctx context.Context, ownerID int, sourceID uint) (int64, error) {
	source, err := s.activeSource(ownerID, sourceID)
	if err != nil {
		return 0, err
	}
	remote, err := s.EnumerateAssets(ctx, source, models.ImportScopeFull, nil)
	if err != nil {
		return 0, err
	}

	ledger, err := s.ledgerRows(source.ID)
	if err != nil {
		return 0, err
	}

	var fresh int64
	for _, asset := range remote {
		row, synced := ledger[asset.ID]
		if !synced || row.Outcome == models.SourceAssetFailed {
			fresh++
		}
	}
	return fresh, nil
}

// EnumerateAssets lists remote assets for the given scope in stable order.
// The import engine relies on the ordering guarantee for crash resume.
func (s *SourceConnectorService) EnumerateAssets(ctx context.Context, source *models.ImportSource, scope string, albumIDs []string) ([]RemoteAsset, error) {
	var selected []string
	if scope == models.ImportScopeSelectedAlbums {
		selected = albumIDs
	}
	var assets []RemoteAsset
	err := s.withRetry(ctx, source, func(p Provider) error {
		var callErr error
		assets, callErr = p.ListAssets(ctx, source.Credentials, selected)
		return callErr
	})
	return assets, err
}

// FetchAsset transfers one asset's bytes.
func (s *SourceConnectorService) FetchAsset(ctx context.Context, source *models.ImportSource, assetID string) ([]byte, error) {
	var data []byte
	err := s.withRetry(ctx, source, func(p Provider) error {
		var callErr error
		data, callErr = p.Fetch(ctx, source.Credentials, assetID)
		return callErr
	})
	return data, err
}

// Candidates filters the enumeration down to assets the given job still has
// to process: assets without a sync ledger row, plus failed rows from other
// jobs. A failure recorded by jobID itself stays excluded so a resumed worker
// does not process (and count) the same asset twice.
func (s *SourceConnectorService) Candidates(ctx context.Context, source *models.ImportSource, scope string, albumIDs []string, jobID string) ([]RemoteAsset, error) {
	remote, err := s.EnumerateAssets(ctx, source, scope, albumIDs)
	if err != nil {
		return nil, err
	}
	ledger, err := s.ledgerRows(source.ID)
	if err != nil {
		return nil, err
	}
	candidates := make([]RemoteAsset, 0, len(remote))
	for _, asset := range remote {
		row, synced := ledger[asset.ID]
		if !synced || (row.Outcome == models.SourceAssetFailed && row.ImportJobID != jobID) {
			candidates = append(candidates, asset)
		}
	}
	return candidates, nil
}

func (s *SourceConnectorService) activeSource(ownerID int, sourceID uint) (*models.ImportSource, error) {
	source, err := s.GetOwnedSource(ownerID, sourceID)
	if err != nil {
		return nil, err
	}
	if !source.IsActive {
		return nil, ErrStateConflict
	}
	return source, nil
}

func (s *SourceConnectorService) ledgerRows(sourceID uint) (map[string]models.SourceAsset, error) {
	var rows []models.SourceAsset
	if err := s.db.Select("provider_asset_id", "outcome", "import_job_id").
		Where("source_id = ?", sourceID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	ledger := make(map[string]models.SourceAsset, len(rows))
	for _, row := range rows {
		ledger[row.ProviderAssetID] = row
	}
	return ledger, nil
}

// withRetry runs one provider call with the service rate limit applied and
// bounded exponential backoff on transient failures. Credential failures are
// surfaced immediately and never retried.
func (s *SourceConnectorService) withRetry(ctx context.Context, source *models.ImportSource, call func(Provider) error) error {
	provider, err := s.registry.ProviderFor(source.Service.ServiceKey)
	if err != nil {
		return err
	}
	limiter := s.registry.LimiterFor(source.Service.ServiceKey)

	var lastErr error
	for attempt := 1; attempt <= providerMaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := call(provider)
		if err == nil {
			return nil
		}
		lastErr = err

		var pErr *ProviderError
		if errors.As(err, &pErr) {
			if pErr.Code == "auth_failed" {
				return fmt.Errorf("%w: %v", ErrAuthFailed, pErr.Err)
			}
			if !pErr.Retryable {
				return fmt.Errorf("%w: %v", ErrProviderUnavailable, pErr.Err)
			}
		}

		if attempt < providerMaxAttempts {
			backoff := s.retryBackoff(attempt)
			log.Printf("provider call failed for source %d (attempt %d/%d), retrying in %s: %v",
				source.ID, attempt, providerMaxAttempts, backoff, err)
			if !sleepWithContext(ctx, backoff) {
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}

// retryBackoff: 1s, 2s, 4s with up to 20% jitter.
func (s *SourceConnectorService) retryBackoff(attempt int) time.Duration {
	base := s.retryBase << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(base/5) + 1))
	return base + jitter
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
