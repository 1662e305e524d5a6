package services

import (
	"errors"
	"log"
	"sort"
	"time"

	"photo-vault-api/config"
	"photo-vault-api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DedupScanService runs whole-vault duplicate scans: exact groups keyed by
// content fingerprint, similar groups clustered by the similarity oracle.
// Groups are materialized as pending rows for the owner to resolve.
type DedupScanService struct {
	db        *gorm.DB
	oracle    SimilarityOracle
	threshold float64
}

func NewDedupScanService(db *gorm.DB) *DedupScanService {
	if db == nil {
		db = config.DB
	}
	return &DedupScanService{db: db, oracle: HammingOracle{}, threshold: similarityThreshold()}
}

// StartScan creates a scan job and spawns its worker. One active scan per
// owner; the insert carries the check so racing calls cannot both win.
func (s *DedupScanService) StartScan(ownerID int) (*models.DedupScanJob, error) {
	scanID := uuid.NewString()
	now := time.Now()
	res := s.db.Exec(`
		INSERT INTO dedup_scan_jobs
			(id, owner_id, status, total_assets, scanned_assets, duplicates_found, similar_found,
			 created_at, updated_at)
		SELECT ?, ?, ?, 0, 0, 0, 0, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM dedup_scan_jobs WHERE owner_id = ? AND status IN (?, ?)
		)`,
		scanID, ownerID, models.DedupScanStatusPending, now, now,
		ownerID, models.DedupScanStatusPending, models.DedupScanStatusScanning,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrActiveJobExists
	}

	scan, err := s.Status(ownerID, scanID)
	if err != nil {
		return nil, err
	}
	go s.runScan(scanID, ownerID)
	return scan, nil
}

func (s *DedupScanService) Status(ownerID int, scanID string) (*models.DedupScanJob, error) {
	var scan models.DedupScanJob
	if err := s.db.Where("id = ?", scanID).First(&scan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if scan.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return &scan, nil
}

// Groups lists the owner's duplicate groups, optionally filtered by status,
// with members preloaded.
func (s *DedupScanService) Groups(ownerID int, status string) ([]models.DuplicateGroup, error) {
	q := s.db.Preload("Members").Where("owner_id = ?", ownerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var groups []models.DuplicateGroup
	err := q.Order("id ASC").Find(&groups).Error
	return groups, err
}

// ResolveGroup applies the owner's decision. keep_one tombstones every
// member except the keeper (keepAssetID, defaulting to the primary);
// keep_all just closes the group. Repeat resolution is an idempotent no-op,
// and members whose assets were removed some other way are skipped rather
// than failed.
func (s *DedupScanService) ResolveGroup(ownerID int, groupID uint, action, keepAssetID string) (*models.DuplicateGroup, error) {
	if action != models.ResolveActionKeepOne && action != models.ResolveActionKeepAll {
		return nil, ErrStateConflict
	}

	var group models.DuplicateGroup
	if err := s.db.Preload("Members").First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if group.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if group.Status == models.DuplicateGroupStatusResolved {
		return &group, nil
	}

	keeper := keepAssetID
	if action == models.ResolveActionKeepOne {
		member := false
		for _, m := range group.Members {
			if keeper == "" && m.IsPrimary {
				keeper = m.AssetID
			}
			if m.AssetID == keeper {
				member = true
			}
		}
		if !member {
			return nil, ErrStateConflict
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if action == models.ResolveActionKeepOne {
			now := time.Now()
			for _, m := range group.Members {
				if m.AssetID == keeper {
					continue
				}
				// Already-tombstoned assets make this a no-op.
				if err := tx.Model(&models.Asset{}).
					Where("id = ? AND deleted_at IS NULL", m.AssetID).
					Update("deleted_at", now).Error; err != nil {
					return err
				}
			}
		}
		return tx.Model(&models.DuplicateGroup{}).Where("id = ?", group.ID).
			Updates(map[string]interface{}{
				"status":      models.DuplicateGroupStatusResolved,
				"resolved_at": time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}

	var resolved models.DuplicateGroup
	if err := s.db.Preload("Members").First(&resolved, group.ID).Error; err != nil {
		return nil, err
	}
	return &resolved, nil
}

// --- scan worker ---

type scanAsset struct {
	ID             string
	Fingerprint    string
	PerceptualHash *string
	Width          int
	Height         int
	CreatedAt      time.Time
}

func (s *DedupScanService) runScan(scanID string, ownerID int) {
	s.db.Model(&models.DedupScanJob{}).Where("id = ?", scanID).
		Updates(map[string]interface{}{
			"status":     models.DedupScanStatusScanning,
			"started_at": time.Now(),
		})

	var assets []scanAsset
	err := s.db.Model(&models.Asset{}).
		Select("id", "fingerprint", "perceptual_hash", "width", "height", "created_at").
		Where("owner_id = ? AND deleted_at IS NULL", ownerID).
		Order("id ASC").
		Scan(&assets).Error
	if err != nil {
		s.failScan(scanID, err)
		return
	}

	s.db.Model(&models.DedupScanJob{}).Where("id = ?", scanID).
		Update("total_assets", int64(len(assets)))

	exactGroups := groupByFingerprint(assets)
	similarGroups := s.clusterSimilar(assets, func(done int) {
		s.db.Model(&models.DedupScanJob{}).Where("id = ?", scanID).
			Update("scanned_assets", int64(done))
	})

	duplicates := 0
	similar := 0
	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, members := range exactGroups {
			if err := s.persistGroup(tx, scanID, ownerID, models.DuplicateGroupTypeExact, members); err != nil {
				return err
			}
			duplicates++
		}
		for _, members := range similarGroups {
			if err := s.persistGroup(tx, scanID, ownerID, models.DuplicateGroupTypeSimilar, members); err != nil {
				return err
			}
			similar++
		}
		return nil
	})
	if err != nil {
		s.failScan(scanID, err)
		return
	}

	s.db.Model(&models.DedupScanJob{}).Where("id = ?", scanID).
		Updates(map[string]interface{}{
			"status":           models.DedupScanStatusCompleted,
			"scanned_assets":   int64(len(assets)),
			"duplicates_found": int64(duplicates),
			"similar_found":    int64(similar),
			"completed_at":     time.Now(),
		})
}

func (s *DedupScanService) failScan(scanID string, cause error) {
	log.Printf("dedup scan %s failed: %v", scanID, cause)
	msg := cause.Error()
	s.db.Model(&models.DedupScanJob{}).Where("id = ?", scanID).
		Updates(map[string]interface{}{
			"status":        models.DedupScanStatusFailed,
			"error_message": msg,
		})
}

// persistGroup writes the group and its members, electing the primary by
// highest pixel count, then earliest import date, then lowest id.
func (s *DedupScanService) persistGroup(tx *gorm.DB, scanID string, ownerID int, groupType string, members []scanAsset) error {
	primary := electPrimary(members)

	group := models.DuplicateGroup{
		OwnerID:    ownerID,
		ScanJobID:  scanID,
		GroupType:  groupType,
		Status:     models.DuplicateGroupStatusPending,
		AssetCount: len(members),
	}
	if err := tx.Create(&group).Error; err != nil {
		return err
	}
	for _, m := range members {
		if err := tx.Create(&models.DuplicateGroupMember{
			GroupID:   group.ID,
			AssetID:   m.ID,
			IsPrimary: m.ID == primary,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func groupByFingerprint(assets []scanAsset) [][]scanAsset {
	byPrint := make(map[string][]scanAsset)
	order := []string{}
	for _, a := range assets {
		if _, seen := byPrint[a.Fingerprint]; !seen {
			order = append(order, a.Fingerprint)
		}
		byPrint[a.Fingerprint] = append(byPrint[a.Fingerprint], a)
	}
	var groups [][]scanAsset
	for _, fp := range order {
		if len(byPrint[fp]) > 1 {
			groups = append(groups, byPrint[fp])
		}
	}
	return groups
}

// scanProgressBatch is how many assets the similarity pass gets through
// before scanned_assets is persisted for pollers.
const scanProgressBatch = 50

// clusterSimilar builds similar groups with union-find over pairwise oracle
// scores. Pairs that are already exact duplicates of each other are left to
// the exact grouping. The pairwise pass is the expensive part of a scan, so
// progress is reported from here in batches.
func (s *DedupScanService) clusterSimilar(assets []scanAsset, progress func(done int)) [][]scanAsset {
	parent := make([]int, len(assets))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	linked := false
	for i := 0; i < len(assets); i++ {
		if hi := assets[i].PerceptualHash; hi != nil && *hi != "" {
			for j := i + 1; j < len(assets); j++ {
				hj := assets[j].PerceptualHash
				if hj == nil || *hj == "" || assets[i].Fingerprint == assets[j].Fingerprint {
					continue
				}
				score, ok := s.oracle.Similarity(*hi, *hj)
				if ok && score >= s.threshold {
					union(i, j)
					linked = true
				}
			}
		}
		if progress != nil && (i+1)%scanProgressBatch == 0 {
			progress(i + 1)
		}
	}
	if !linked {
		return nil
	}

	clusters := make(map[int][]scanAsset)
	for i, a := range assets {
		root := find(i)
		clusters[root] = append(clusters[root], a)
	}

	roots := make([]int, 0, len(clusters))
	for root, members := range clusters {
		if len(members) > 1 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	var groups [][]scanAsset
	for _, root := range roots {
		groups = append(groups, clusters[root])
	}
	return groups
}

func electPrimary(members []scanAsset) string {
	best := members[0]
	for _, m := range members[1:] {
		br, mr := int64(best.Width)*int64(best.Height), int64(m.Width)*int64(m.Height)
		switch {
		case mr > br:
			best = m
		case mr == br && m.CreatedAt.Before(best.CreatedAt):
			best = m
		case mr == br && m.CreatedAt.Equal(best.CreatedAt) && m.ID < best.ID:
			best = m
		}
	}
	return best.ID
}
