package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photo-vault-api/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// newTestDB opens a private in-memory database. Shared cache plus a single
// connection keeps every goroutine on the same database and serializes
// access, which sqlite needs anyway.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:vaulttest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// fakeProvider is an in-memory Provider with scriptable failures.
type fakeProvider struct {
	mu     sync.Mutex
	albums []Album
	assets []RemoteAsset
	blobs  map[string][]byte

	// listFailures transient errors are returned before ListAssets first
	// succeeds.
	listFailures int
	// listErr, when set, is returned by every list call.
	listErr error
	// fetchErr, when set, is returned by every Fetch call.
	fetchErr error
	// fetchDelay slows each Fetch down, for cancel/pause tests.
	fetchDelay time.Duration

	listCalls  int
	fetchCalls int
}

func (f *fakeProvider) ListAlbums(ctx context.Context, credential string) ([]Album, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.albums, nil
}

func (f *fakeProvider) ListAssets(ctx context.Context, credential string, albumIDs []string) ([]RemoteAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listFailures > 0 {
		f.listFailures--
		return nil, &ProviderError{Code: "rate_limited", Retryable: true, Err: fmt.Errorf("throttled")}
	}
	if len(albumIDs) == 0 {
		return f.assets, nil
	}
	wanted := map[string]bool{}
	for _, id := range albumIDs {
		wanted[id] = true
	}
	var out []RemoteAsset
	for _, a := range f.assets {
		if wanted[a.AlbumID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeProvider) Fetch(ctx context.Context, credential string, assetID string) ([]byte, error) {
	f.mu.Lock()
	delay := f.fetchDelay
	f.fetchCalls++
	err := f.fetchErr
	blob, ok := f.blobs[assetID]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ProviderError{Code: "missing_entry", Retryable: false, Err: fmt.Errorf("no blob for %s", assetID)}
	}
	return blob, nil
}

// fakeAssets builds n enumerable assets with distinct content.
func fakeAssets(n int) ([]RemoteAsset, map[string][]byte) {
	assets := make([]RemoteAsset, 0, n)
	blobs := make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("a%03d", i)
		assets = append(assets, RemoteAsset{
			ID:        id,
			FileName:  id + ".jpg",
			MimeType:  "image/jpeg",
			SizeBytes: 64,
			Width:     800,
			Height:    600,
		})
		blobs[id] = []byte(fmt.Sprintf("image-bytes-%03d", i))
	}
	return assets, blobs
}

// importEnv bundles everything an import test needs: one user, one active
// source backed by the fake provider, and services sharing one database.
type importEnv struct {
	db     *gorm.DB
	reg    *ServiceRegistry
	conn   *SourceConnectorService
	jobs   *ImportJobService
	fp     *fakeProvider
	owner  models.User
	source models.ImportSource
}

func newImportEnv(t *testing.T, fp *fakeProvider) *importEnv {
	t.Helper()

	db := newTestDB(t)
	reg := NewServiceRegistry(db)

	svc := models.ImportService{
		ServiceKey:  "fake",
		DisplayName: "Fake Provider",
		AuthKind:    models.AuthKindArchive,
		IsActive:    true,
	}
	if err := db.Create(&svc).Error; err != nil {
		t.Fatalf("create service: %v", err)
	}
	reg.RegisterProvider("fake", fp)

	conn := NewSourceConnectorService(db, reg)
	conn.retryBase = time.Millisecond

	owner := models.User{UserID: 1, Email: "owner@example.com", DisplayName: "Owner"}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	source := models.ImportSource{OwnerID: owner.UserID, ServiceID: svc.ID, Credentials: "fake-cred", IsActive: true}
	if err := db.Create(&source).Error; err != nil {
		t.Fatalf("create source: %v", err)
	}

	jobs := &ImportJobService{
		db:            db,
		connector:     conn,
		guard:         NewPlanGuardService(db),
		oracle:        HammingOracle{},
		threshold:     DefaultSimilarityThreshold,
		storageRoot:   t.TempDir(),
		leaseDuration: time.Minute,
	}

	return &importEnv{db: db, reg: reg, conn: conn, jobs: jobs, fp: fp, owner: owner, source: source}
}

// addSource connects a second source for the same owner and service.
func (e *importEnv) addSource(t *testing.T, credential string) models.ImportSource {
	t.Helper()
	source := models.ImportSource{OwnerID: e.owner.UserID, ServiceID: e.source.ServiceID, Credentials: credential, IsActive: true}
	if err := e.db.Create(&source).Error; err != nil {
		t.Fatalf("create second source: %v", err)
	}
	return source
}

// waitForJobStatus polls until the job reaches one of the wanted statuses.
func waitForJobStatus(t *testing.T, jobs *ImportJobService, ownerID int, jobID string, want ...string) *models.ImportJob {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.Status(ownerID, jobID)
		if err != nil {
			t.Fatalf("poll job: %v", err)
		}
		for _, w := range want {
			if job.Status == w {
				return job
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := jobs.Status(ownerID, jobID)
	t.Fatalf("job %s never reached %v, last status %q", jobID, want, job.Status)
	return nil
}

// waitForScanTerminal polls a dedup scan to completion.
func waitForScanTerminal(t *testing.T, scans *DedupScanService, ownerID int, scanID string) *models.DedupScanJob {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		scan, err := scans.Status(ownerID, scanID)
		if err != nil {
			t.Fatalf("poll scan: %v", err)
		}
		if scan.IsTerminal() {
			return scan
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("scan %s never finished", scanID)
	return nil
}
