package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// CatalogEntry describes one external provider in the service catalog.
// OAuth fields stay empty for archive-based providers.
type CatalogEntry struct {
	ServiceKey        string   `toml:"service_key"`
	DisplayName       string   `toml:"display_name"`
	AuthKind          string   `toml:"auth_kind"`
	RequiresAppReview bool     `toml:"requires_app_review"`
	Active            bool     `toml:"active"`
	ClientID          string   `toml:"client_id"`
	ClientSecret      string   `toml:"client_secret"`
	AuthURL           string   `toml:"auth_url"`
	TokenURL          string   `toml:"token_url"`
	RedirectURL       string   `toml:"redirect_url"`
	Scopes            []string `toml:"scopes"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

type providerCatalog struct {
	Providers []CatalogEntry `toml:"providers"`
}

// LoadCatalog reads the provider catalog from the TOML file named by
// PROVIDER_CATALOG (default providers.toml). A missing file falls back to the
// built-in defaults so a bare checkout still serves the archive provider.
func LoadCatalog() ([]CatalogEntry, error) {
	path := os.Getenv("PROVIDER_CATALOG")
	if path == "" {
		path = "providers.toml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultCatalog(), nil
	}

	var catalog providerCatalog
	if _, err := toml.DecodeFile(path, &catalog); err != nil {
		return nil, fmt.Errorf("parse provider catalog %s: %w", path, err)
	}
	if len(catalog.Providers) == 0 {
		return nil, fmt.Errorf("provider catalog %s lists no providers", path)
	}
	return catalog.Providers, nil
}

func defaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			ServiceKey:        "archive",
			DisplayName:       "Archive Upload",
			AuthKind:          "archive",
			Active:            true,
			RequestsPerSecond: 0,
		},
		{
			ServiceKey:        "google_photos",
			DisplayName:       "Google Photos",
			AuthKind:          "oauth",
			RequiresAppReview: true,
			Active:            true,
			ClientID:          os.Getenv("GOOGLE_PHOTOS_CLIENT_ID"),
			ClientSecret:      os.Getenv("GOOGLE_PHOTOS_CLIENT_SECRET"),
			AuthURL:           "https://accounts.google.com/o/oauth2/auth",
			TokenURL:          "https://oauth2.googleapis.com/token",
			RedirectURL:       os.Getenv("GOOGLE_PHOTOS_REDIRECT_URL"),
			Scopes:            []string{"https://www.googleapis.com/auth/photoslibrary.readonly"},
			RequestsPerSecond: 5,
		},
	}
}
