package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Album is a remote album as reported by a provider.
type Album struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	AssetCount int    `json:"asset_count"`
}

// RemoteAsset is one enumerable asset on the provider side. Providers must
// return assets in a stable order (ascending ID) so interrupted jobs resume
// deterministically.
type RemoteAsset struct {
	ID             string
	AlbumID        string
	FileName       string
	MimeType       string
	SizeBytes      int64
	Width          int
	Height         int
	PerceptualHash string
}

// Provider fetches albums and assets from one external service. The
// credential string is whatever connect() stored on the source: an OAuth
// token blob for oauth services, an archive path for file-based ones.
type Provider interface {
	ListAlbums(ctx context.Context, credential string) ([]Album, error)
	// ListAssets enumerates assets, restricted to albumIDs when non-empty,
	// in stable ascending-ID order.
	ListAssets(ctx context.Context, credential string, albumIDs []string) ([]RemoteAsset, error)
	Fetch(ctx context.Context, credential string, assetID string) ([]byte, error)
}

// ArchiveProvider serves a local .zip as a provider: every regular file entry
// is one asset, top-level directories act as albums. It backs the non-OAuth
// connect branch end to end.
type ArchiveProvider struct{}

func (ArchiveProvider) ListAlbums(ctx context.Context, credential string) ([]Album, error) {
	entries, err := archiveEntries(credential)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, e := range entries {
		counts[archiveAlbumOf(e)]++
	}
	albums := make([]Album, 0, len(counts))
	for id, n := range counts {
		title := id
		if title == "" {
			title = "Unsorted"
		}
		albums = append(albums, Album{ID: id, Title: title, AssetCount: n})
	}
	sort.Slice(albums, func(i, j int) bool { return albums[i].ID < albums[j].ID })
	return albums, nil
}

func (ArchiveProvider) ListAssets(ctx context.Context, credential string, albumIDs []string) ([]RemoteAsset, error) {
	entries, err := archiveEntries(credential)
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, id := range albumIDs {
		wanted[id] = true
	}

	assets := make([]RemoteAsset, 0, len(entries))
	for _, e := range entries {
		album := archiveAlbumOf(e)
		if len(wanted) > 0 && !wanted[album] {
			continue
		}
		assets = append(assets, RemoteAsset{
			ID:        e.Name,
			AlbumID:   album,
			FileName:  path.Base(e.Name),
			MimeType:  mime.TypeByExtension(filepath.Ext(e.Name)),
			SizeBytes: int64(e.UncompressedSize64),
		})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

func (ArchiveProvider) Fetch(ctx context.Context, credential string, assetID string) ([]byte, error) {
	r, err := zip.OpenReader(credential)
	if err != nil {
		return nil, &ProviderError{Code: "archive_open", Retryable: false, Err: err}
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != assetID {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, &ProviderError{Code: "archive_read", Retryable: false, Err: err}
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, rc); err != nil {
			return nil, &ProviderError{Code: "archive_read", Retryable: false, Err: err}
		}
		return buf.Bytes(), nil
	}
	return nil, &ProviderError{Code: "archive_missing_entry", Retryable: false, Err: errors.New("entry not found: " + assetID)}
}

func archiveEntries(credential string) ([]*zip.File, error) {
	if _, err := os.Stat(credential); err != nil {
		return nil, &ProviderError{Code: "archive_open", Retryable: false, Err: err}
	}
	r, err := zip.OpenReader(credential)
	if err != nil {
		return nil, &ProviderError{Code: "archive_open", Retryable: false, Err: err}
	}
	defer r.Close()

	entries := make([]*zip.File, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(path.Base(f.Name), ".") {
			continue
		}
		entries = append(entries, f)
	}
	return entries, nil
}

func archiveAlbumOf(f *zip.File) string {
	dir := path.Dir(f.Name)
	if dir == "." || dir == "/" {
		return ""
	}
	// Top-level directory only
	parts := strings.SplitN(dir, "/", 2)
	return parts[0]
}
