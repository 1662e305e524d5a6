package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTestArchive(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	path := filepath.Join(t.TempDir(), "takeout.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return path
}

func TestArchiveProviderTreatsTopLevelDirsAsAlbums(t *testing.T) {
	archive := writeTestArchive(t, map[string][]byte{
		"holiday/beach.jpg":    []byte("beach"),
		"holiday/sunset.jpg":   []byte("sunset"),
		"pets/cat.jpg":         []byte("cat"),
		"loose.jpg":            []byte("loose"),
		"holiday/.DS_Store":    []byte("junk"),
		"pets/nested/more.jpg": []byte("more"),
	})
	p := ArchiveProvider{}

	albums, err := p.ListAlbums(context.Background(), archive)
	if err != nil {
		t.Fatalf("list albums: %v", err)
	}
	counts := map[string]int{}
	for _, a := range albums {
		counts[a.ID] = a.AssetCount
	}
	if counts["holiday"] != 2 || counts["pets"] != 2 || counts[""] != 1 {
		t.Fatalf("album counts = %v", counts)
	}

	assets, err := p.ListAssets(context.Background(), archive, nil)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 5 {
		t.Fatalf("got %d assets, want 5 (dotfiles excluded)", len(assets))
	}
	// Stable ascending order by entry name.
	for i := 1; i < len(assets); i++ {
		if assets[i-1].ID >= assets[i].ID {
			t.Fatalf("assets out of order: %s before %s", assets[i-1].ID, assets[i].ID)
		}
	}

	scoped, err := p.ListAssets(context.Background(), archive, []string{"pets"})
	if err != nil {
		t.Fatalf("list scoped: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("pets album has %d assets, want 2", len(scoped))
	}
}

func TestArchiveProviderFetch(t *testing.T) {
	archive := writeTestArchive(t, map[string][]byte{
		"holiday/beach.jpg": []byte("beach-bytes"),
	})
	p := ArchiveProvider{}

	data, err := p.Fetch(context.Background(), archive, "holiday/beach.jpg")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "beach-bytes" {
		t.Fatalf("fetched %q", data)
	}

	_, err = p.Fetch(context.Background(), archive, "holiday/missing.jpg")
	var pErr *ProviderError
	if !errors.As(err, &pErr) || pErr.Retryable {
		t.Fatalf("missing entry err = %v, want non-retryable provider error", err)
	}
}

func TestArchiveProviderMissingFile(t *testing.T) {
	p := ArchiveProvider{}
	_, err := p.ListAssets(context.Background(), filepath.Join(t.TempDir(), "gone.zip"), nil)
	var pErr *ProviderError
	if !errors.As(err, &pErr) || pErr.Retryable {
		t.Fatalf("missing archive err = %v, want non-retryable provider error", err)
	}
}
