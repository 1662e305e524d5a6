package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"photo-vault-api/config"
	"photo-vault-api/models"
)

func TestConnectOAuthServiceReturnsAuthURL(t *testing.T) {
	db := newTestDB(t)
	reg := NewServiceRegistry(db)
	err := reg.Seed([]config.CatalogEntry{{
		ServiceKey:  "cloudpics",
		DisplayName: "Cloud Pics",
		AuthKind:    "oauth",
		Active:      true,
		ClientID:    "client-1",
		AuthURL:     "https://cloudpics.example/oauth/authorize",
		TokenURL:    "https://cloudpics.example/oauth/token",
		RedirectURL: "https://vault.example/callback",
		Scopes:      []string{"photos.read"},
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	conn := NewSourceConnectorService(db, reg)

	result, err := conn.Connect(1, "cloudpics", "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if result.Source != nil {
		t.Fatal("oauth connect must not create a source before the handshake")
	}
	if !strings.HasPrefix(result.AuthURL, "https://cloudpics.example/oauth/authorize?") {
		t.Fatalf("auth url = %q", result.AuthURL)
	}
	if !strings.Contains(result.AuthURL, "client_id=client-1") || !strings.Contains(result.AuthURL, "state=") {
		t.Fatalf("auth url missing client or state: %q", result.AuthURL)
	}
}

func TestConnectArchiveServiceCreatesSource(t *testing.T) {
	db := newTestDB(t)
	reg := NewServiceRegistry(db)
	if err := reg.Seed([]config.CatalogEntry{{
		ServiceKey: "archive", DisplayName: "Archive Upload", AuthKind: "archive", Active: true,
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	conn := NewSourceConnectorService(db, reg)

	archive := filepath.Join(t.TempDir(), "takeout.zip")
	if err := os.WriteFile(archive, []byte("PK"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	result, err := conn.Connect(1, "archive", archive)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if result.Source == nil || !result.Source.IsActive {
		t.Fatalf("archive connect result = %+v", result)
	}

	// Missing path and missing file are both rejected.
	if _, err := conn.Connect(1, "archive", ""); err == nil {
		t.Fatal("connect without archive path accepted")
	}
	if _, err := conn.Connect(1, "archive", filepath.Join(t.TempDir(), "nope.zip")); err == nil {
		t.Fatal("connect with missing archive accepted")
	}
}

func TestSeedPersistsCapabilityFlags(t *testing.T) {
	db := newTestDB(t)
	reg := NewServiceRegistry(db)

	entry := config.CatalogEntry{ServiceKey: "parked", DisplayName: "Parked", AuthKind: "oauth", Active: false}
	if err := reg.Seed([]config.CatalogEntry{entry}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var svc models.ImportService
	if err := db.Where("service_key = ?", "parked").First(&svc).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if svc.IsActive {
		t.Fatal("active=false catalog entry stored as is_active=true")
	}

	// Re-seeding flips the flag both ways through the upsert.
	entry.Active = true
	if err := reg.Seed([]config.CatalogEntry{entry}); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	db.Where("service_key = ?", "parked").First(&svc)
	if !svc.IsActive {
		t.Fatal("reseed did not activate the service")
	}
	entry.Active = false
	if err := reg.Seed([]config.CatalogEntry{entry}); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	db.Where("service_key = ?", "parked").First(&svc)
	if svc.IsActive {
		t.Fatal("reseed did not deactivate the service")
	}
}

func TestConnectGatesUnavailableServices(t *testing.T) {
	db := newTestDB(t)
	reg := NewServiceRegistry(db)
	if err := reg.Seed([]config.CatalogEntry{
		{ServiceKey: "parked", DisplayName: "Parked", AuthKind: "oauth", Active: false},
		{ServiceKey: "pending_review", DisplayName: "Pending", AuthKind: "oauth", Active: true, RequiresAppReview: true},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	conn := NewSourceConnectorService(db, reg)

	if _, err := conn.Connect(1, "parked", ""); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("inactive service err = %v, want ErrServiceUnavailable", err)
	}
	if _, err := conn.Connect(1, "pending_review", ""); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("under-review service err = %v, want ErrServiceUnavailable", err)
	}
	if _, err := conn.Connect(1, "unknown", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown service err = %v, want ErrNotFound", err)
	}
}

func TestDisconnectDeactivatesButKeepsHistory(t *testing.T) {
	assets, blobs := fakeAssets(1)
	env := newImportEnv(t, &fakeProvider{assets: assets, blobs: blobs})

	if err := env.conn.Disconnect(env.owner.UserID, env.source.ID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	var source models.ImportSource
	env.db.First(&source, env.source.ID)
	if source.IsActive {
		t.Fatal("source still active after disconnect")
	}

	// Disconnecting again is a no-op, not an error.
	if err := env.conn.Disconnect(env.owner.UserID, env.source.ID); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}

	// An inactive source refuses new work.
	if _, err := env.conn.ListAlbums(context.Background(), env.owner.UserID, env.source.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("list albums on inactive source err = %v, want ErrStateConflict", err)
	}
	if _, err := env.jobs.Start(context.Background(), env.owner.UserID, &ImportJobInput{
		SourceID: env.source.ID, Scope: models.ImportScopeFull,
	}); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("start on inactive source err = %v, want ErrStateConflict", err)
	}
}

func TestSourceOwnerScoping(t *testing.T) {
	assets, blobs := fakeAssets(1)
	env := newImportEnv(t, &fakeProvider{assets: assets, blobs: blobs})

	if _, err := env.conn.GetOwnedSource(2, env.source.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign source err = %v, want ErrForbidden", err)
	}
	if _, err := env.conn.GetOwnedSource(env.owner.UserID, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing source err = %v, want ErrNotFound", err)
	}
}

func TestCheckNewCountsOnlyUnsyncedAssets(t *testing.T) {
	assets, blobs := fakeAssets(5)
	env := newImportEnv(t, &fakeProvider{assets: assets, blobs: blobs})

	count, err := env.conn.CheckNew(context.Background(), env.owner.UserID, env.source.ID)
	if err != nil {
		t.Fatalf("check new: %v", err)
	}
	if count != 5 {
		t.Fatalf("fresh source check-new = %d, want 5", count)
	}

	// Ledger two of them, whatever the outcome was.
	for i, outcome := range []string{models.SourceAssetImported, models.SourceAssetSkippedDuplicate} {
		env.db.Create(&models.SourceAsset{
			SourceID: env.source.ID, ProviderAssetID: fmt.Sprintf("a%03d", i),
			ImportJobID: "old-job", Outcome: outcome,
		})
	}

	count, err = env.conn.CheckNew(context.Background(), env.owner.UserID, env.source.ID)
	if err != nil {
		t.Fatalf("check new: %v", err)
	}
	if count != 3 {
		t.Fatalf("check-new after partial sync = %d, want 3", count)
	}

	// A failed ledger row is retryable, so the asset still counts as new.
	env.db.Create(&models.SourceAsset{
		SourceID: env.source.ID, ProviderAssetID: "a002",
		ImportJobID: "old-job", Outcome: models.SourceAssetFailed,
	})
	count, err = env.conn.CheckNew(context.Background(), env.owner.UserID, env.source.ID)
	if err != nil {
		t.Fatalf("check new: %v", err)
	}
	if count != 3 {
		t.Fatalf("check-new with a failed row = %d, want 3", count)
	}
}

func TestWithRetryRecoversFromTransientFailures(t *testing.T) {
	assets, blobs := fakeAssets(2)
	fp := &fakeProvider{assets: assets, blobs: blobs, listFailures: 2}
	env := newImportEnv(t, fp)

	source, _ := env.conn.GetOwnedSource(env.owner.UserID, env.source.ID)
	got, err := env.conn.EnumerateAssets(context.Background(), source, models.ImportScopeFull, nil)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d assets after retries, want 2", len(got))
	}
	if fp.listCalls != 3 {
		t.Fatalf("listCalls = %d, want 3 (two transient failures then success)", fp.listCalls)
	}
}

func TestWithRetryGivesUpAfterBoundedAttempts(t *testing.T) {
	fp := &fakeProvider{listErr: &ProviderError{Code: "rate_limited", Retryable: true, Err: errors.New("still throttled")}}
	env := newImportEnv(t, fp)

	source, _ := env.conn.GetOwnedSource(env.owner.UserID, env.source.ID)
	_, err := env.conn.EnumerateAssets(context.Background(), source, models.ImportScopeFull, nil)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("exhausted retries err = %v, want ErrProviderUnavailable", err)
	}
	if fp.listCalls != providerMaxAttempts {
		t.Fatalf("listCalls = %d, want %d", fp.listCalls, providerMaxAttempts)
	}
}

func TestWithRetryNeverRetriesCredentialFailures(t *testing.T) {
	fp := &fakeProvider{listErr: &ProviderError{Code: "auth_failed", Retryable: false, Err: errors.New("token revoked")}}
	env := newImportEnv(t, fp)

	source, _ := env.conn.GetOwnedSource(env.owner.UserID, env.source.ID)
	start := time.Now()
	_, err := env.conn.EnumerateAssets(context.Background(), source, models.ImportScopeFull, nil)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("credential failure err = %v, want ErrAuthFailed", err)
	}
	if fp.listCalls != 1 {
		t.Fatalf("listCalls = %d, want 1 (no retries)", fp.listCalls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("credential failure waited %s before surfacing", elapsed)
	}
}
