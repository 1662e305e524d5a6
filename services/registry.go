package services

import (
	"errors"
	"log"

	"photo-vault-api/config"
	"photo-vault-api/models"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ServiceRegistry is the static catalog of supported providers: capability
// flags persisted in import_services, plus the runtime pieces (provider
// adapter, oauth2 config, rate limiter) keyed by service_key.
type ServiceRegistry struct {
	db        *gorm.DB
	providers map[string]Provider
	oauth     map[string]*oauth2.Config
	limiters  map[string]*rate.Limiter
}

func NewServiceRegistry(db *gorm.DB) *ServiceRegistry {
	if db == nil {
		db = config.DB
	}
	return &ServiceRegistry{
		db:        db,
		providers: map[string]Provider{},
		oauth:     map[string]*oauth2.Config{},
		limiters:  map[string]*rate.Limiter{},
	}
}

// Seed upserts the catalog entries into import_services and wires up the
// runtime registry. Archive-kind entries get the built-in archive provider.
func (r *ServiceRegistry) Seed(entries []config.CatalogEntry) error {
	for _, e := range entries {
		svc := models.ImportService{
			ServiceKey:        e.ServiceKey,
			DisplayName:       e.DisplayName,
			AuthKind:          e.AuthKind,
			RequiresAppReview: e.RequiresAppReview,
			IsActive:          e.Active,
		}
		if err := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "auth_kind", "requires_app_review", "is_active"}),
		}).Create(&svc).Error; err != nil {
			return err
		}

		if e.AuthKind == models.AuthKindArchive {
			r.providers[e.ServiceKey] = ArchiveProvider{}
		}
		if e.AuthKind == models.AuthKindOAuth {
			r.oauth[e.ServiceKey] = &oauth2.Config{
				ClientID:     e.ClientID,
				ClientSecret: e.ClientSecret,
				RedirectURL:  e.RedirectURL,
				Scopes:       e.Scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:  e.AuthURL,
					TokenURL: e.TokenURL,
				},
			}
		}
		if e.RequestsPerSecond > 0 {
			r.limiters[e.ServiceKey] = rate.NewLimiter(rate.Limit(e.RequestsPerSecond), 1)
		}
	}
	log.Printf("seeded %d import services", len(entries))
	return nil
}

// RegisterProvider installs (or replaces) the adapter for a service key.
func (r *ServiceRegistry) RegisterProvider(serviceKey string, p Provider) {
	r.providers[serviceKey] = p
}

func (r *ServiceRegistry) List() ([]models.ImportService, error) {
	var services []models.ImportService
	err := r.db.Order("service_key ASC").Find(&services).Error
	return services, err
}

// GetActive loads a catalog row and enforces the capability gate: inactive
// and under-review services reject connect with a distinct error code.
func (r *ServiceRegistry) GetActive(serviceKey string) (*models.ImportService, error) {
	var svc models.ImportService
	if err := r.db.Where("service_key = ?", serviceKey).First(&svc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !svc.IsActive || svc.RequiresAppReview {
		return nil, ErrServiceUnavailable
	}
	return &svc, nil
}

// AuthCodeURL builds the provider's OAuth authorization URL. Completing the
// handshake happens out of band; only the redirect URL is produced here.
func (r *ServiceRegistry) AuthCodeURL(serviceKey string) (string, error) {
	cfg, ok := r.oauth[serviceKey]
	if !ok {
		return "", ErrServiceUnavailable
	}
	state := uuid.NewString()
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// ProviderFor returns the adapter registered for a service key.
func (r *ServiceRegistry) ProviderFor(serviceKey string) (Provider, error) {
	p, ok := r.providers[serviceKey]
	if !ok {
		return nil, ErrServiceUnavailable
	}
	return p, nil
}

// LimiterFor returns the provider's rate limiter, or nil when unthrottled.
func (r *ServiceRegistry) LimiterFor(serviceKey string) *rate.Limiter {
	return r.limiters[serviceKey]
}
